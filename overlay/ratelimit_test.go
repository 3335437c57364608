package overlay

import (
	"context"
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/require"

	"github.com/casper-network/casper-node-go/crypto/identity"
	"github.com/casper-network/casper-node-go/ratelimit"
)

func TestTierOfReportsValidatorMembership(t *testing.T) {
	validators := mapset.NewSet(nodeID(1), nodeID(2))
	require.Equal(t, ratelimit.TierValidator, tierOf(validators, nodeID(1)))
	require.Equal(t, ratelimit.TierNonValidator, tierOf(validators, nodeID(3)))
}

func TestSetValidatorsRetiersConnectedPeers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimits = ratelimit.Config{
		ValidatorMessagesPerSec:    1,
		ValidatorBurstMessages:     1,
		NonValidatorMessagesPerSec: 1,
		NonValidatorBurstMessages:  1,
	}
	n := &Network{
		cfg:        cfg,
		peers:      map[identity.NodeId]*Peer{},
		syncing:    mapset.NewSet[identity.NodeId](),
		excluded:   mapset.NewSet[identity.NodeId](),
		validators: mapset.NewSet[identity.NodeId](),
	}
	p := &Peer{NodeID: nodeID(5)}
	n.registerPeer(p)
	require.NotNil(t, p.limiter)

	// A lone non-validator's burst is 1 message; a second immediate message
	// must wait. Draining the single burst permit here proves registerPeer
	// actually wired a live limiter rather than a zero-value no-op.
	require.NoError(t, p.limiter.WaitMessage(context.Background()))
	before := p.limiter

	n.SetValidators([]identity.NodeId{nodeID(5)})
	require.True(t, n.validators.Contains(nodeID(5)))
	require.NotNil(t, p.limiter)
	require.NotSame(t, before, p.limiter)
}
