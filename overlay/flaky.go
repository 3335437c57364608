package overlay

import (
	"math/rand"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/casper-network/casper-node-go/crypto/identity"
)

// FlakinessConfig enables the test/chaos-only artificial connection drops
// named in §9's open question: a node configured this way schedules a
// random future drop of a random connected peer at roughly drop_interval.
type FlakinessConfig struct {
	Enabled      bool
	DropInterval time.Duration
	DropJitter   time.Duration
}

// flakiness drives scheduled drops. Per §9, if a drop is already scheduled
// when another scheduling attempt lands on the same peer, the second one is
// a silent no-op — this is preserved verbatim, not "fixed", per the
// instruction to keep likely-buggy legacy behavior intact.
type flakiness struct {
	mu        sync.Mutex
	scheduled map[identity.NodeId]bool
}

func newFlakiness() *flakiness {
	return &flakiness{scheduled: make(map[identity.NodeId]bool)}
}

// scheduleDrop marks peer as having a drop scheduled. Returns false, doing
// nothing else, if a drop was already scheduled for peer — the preserved
// double-drop-is-silent-no-op behavior.
func (f *flakiness) scheduleDrop(peer identity.NodeId) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scheduled[peer] {
		return false
	}
	f.scheduled[peer] = true
	return true
}

func (f *flakiness) clear(peer identity.NodeId) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.scheduled, peer)
}

// RunFlakiness picks a random connected peer every drop_interval and drops
// it after a random delay in [0, drop_jitter), for chaos-testing the
// overlay's reconnect path. It stops when stop is closed.
func (n *Network) RunFlakiness(cfg FlakinessConfig, rng *rand.Rand, stop <-chan struct{}) {
	if !cfg.Enabled {
		return
	}
	fl := newFlakiness()
	ticker := time.NewTicker(cfg.DropInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			peers := n.ConnectedPeerIDs(false)
			if len(peers) == 0 {
				continue
			}
			target := peers[rng.Intn(len(peers))]
			if !fl.scheduleDrop(target) {
				// Already scheduled: preserved silent no-op, per §9.
				continue
			}
			jitter := time.Duration(0)
			if cfg.DropJitter > 0 {
				jitter = time.Duration(rng.Int63n(int64(cfg.DropJitter)))
			}
			delay := jitter
			go func(id identity.NodeId) {
				time.Sleep(delay)
				n.dropPeer(id)
				fl.clear(id)
			}(target)
			log.Debug("overlay: flakiness scheduled drop", "node", target, "delay", delay)
		}
	}
}

// dropPeer force-closes a connected peer, simulating a network blip.
func (n *Network) dropPeer(id identity.NodeId) {
	n.mu.RLock()
	p, ok := n.peers[id]
	n.mu.RUnlock()
	if !ok {
		return
	}
	p.Close()
}
