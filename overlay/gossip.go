package overlay

import (
	"context"
	"math/rand"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/casper-network/casper-node-go/crypto/identity"
	"github.com/casper-network/casper-node-go/wire"
)

// GossipTarget selects which peers a gossip round reaches, per §4.B:
// All uniformly samples every connected peer; Mixed(era) partitions the
// connected set into validators-in-era and everyone-else and interleaves
// picks fairly between the two partitions, giving neither a sampling edge.
type GossipTarget struct {
	Mixed      bool
	Validators map[identity.NodeId]bool // validators in the named era, when Mixed
}

// All is the uniform-sample target.
func All() GossipTarget { return GossipTarget{} }

// MixedByEra is the validator/non-validator partitioned target.
func MixedByEra(validators map[identity.NodeId]bool) GossipTarget {
	return GossipTarget{Mixed: true, Validators: validators}
}

// selectTargets picks up to n peer ids from candidates per target's policy.
func selectTargets(candidates []identity.NodeId, target GossipTarget, n int, rng *rand.Rand) []identity.NodeId {
	if !target.Mixed {
		return sampleUniform(candidates, n, rng)
	}

	var validators, others []identity.NodeId
	for _, id := range candidates {
		if target.Validators[id] {
			validators = append(validators, id)
		} else {
			others = append(others, id)
		}
	}
	validators = sampleUniform(validators, n, rng)
	others = sampleUniform(others, n, rng)

	// Fair first-pick interleave: alternate between the two partitions so
	// neither is systematically favored by truncation at n.
	out := make([]identity.NodeId, 0, n)
	vi, oi := 0, 0
	takeValidatorFirst := rng.Intn(2) == 0
	for len(out) < n && (vi < len(validators) || oi < len(others)) {
		if takeValidatorFirst {
			if vi < len(validators) {
				out = append(out, validators[vi])
				vi++
			}
			if len(out) < n && oi < len(others) {
				out = append(out, others[oi])
				oi++
			}
		} else {
			if oi < len(others) {
				out = append(out, others[oi])
				oi++
			}
			if len(out) < n && vi < len(validators) {
				out = append(out, validators[vi])
				vi++
			}
		}
	}
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func sampleUniform(candidates []identity.NodeId, n int, rng *rand.Rand) []identity.NodeId {
	if len(candidates) <= n {
		out := make([]identity.NodeId, len(candidates))
		copy(out, candidates)
		return out
	}
	shuffled := make([]identity.NodeId, len(candidates))
	copy(shuffled, candidates)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled[:n]
}

// Gossip sends payload to a target-selected subset of connected peers, per
// §6 gossip. Peers flagged syncing are excluded, matching the "unsafe for
// syncing peers" message-filtering rule of §4.B.
func (n *Network) Gossip(target GossipTarget, payload []byte, rng *rand.Rand) {
	candidates := n.ConnectedPeerIDs(true)
	picks := selectTargets(candidates, target, n.cfg.GossipTargetsPerRequest, rng)
	for _, id := range picks {
		if err := n.SendTo(id, payload); err != nil {
			log.Debug("overlay: gossip send failed", "node", id, "err", err)
			continue
		}
		metricGossipSent.Mark(1)
	}
}

// gossipLoop periodically gossips this node's own public address to a
// uniformly sampled subset of peers, per §4.B's gossip_interval.
func (n *Network) gossipLoop(ctx context.Context) error {
	if n.cfg.GossipInterval <= 0 {
		return nil
	}
	ticker := time.NewTicker(n.cfg.GossipInterval)
	defer ticker.Stop()
	rng := newRand()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			payload, err := wire.EncodePayload(n.cfg.PublicAddr.String())
			if err != nil {
				log.Warn("overlay: encode address gossip payload failed", "err", err)
				continue
			}
			n.Gossip(All(), payload, rng)
		}
	}
}
