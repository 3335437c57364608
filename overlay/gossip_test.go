package overlay

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/casper-network/casper-node-go/crypto/identity"
)

func nodeID(b byte) identity.NodeId {
	var id identity.NodeId
	id[0] = b
	return id
}

func TestSelectTargetsUniformCapsAtN(t *testing.T) {
	candidates := []identity.NodeId{nodeID(1), nodeID(2), nodeID(3), nodeID(4), nodeID(5)}
	rng := rand.New(rand.NewSource(1))
	picks := selectTargets(candidates, All(), 3, rng)
	require.Len(t, picks, 3)
}

func TestSelectTargetsUniformReturnsAllWhenFewerThanN(t *testing.T) {
	candidates := []identity.NodeId{nodeID(1), nodeID(2)}
	rng := rand.New(rand.NewSource(1))
	picks := selectTargets(candidates, All(), 5, rng)
	require.Len(t, picks, 2)
}

func TestSelectTargetsMixedInterleavesPartitions(t *testing.T) {
	validators := map[identity.NodeId]bool{nodeID(1): true, nodeID(2): true}
	candidates := []identity.NodeId{nodeID(1), nodeID(2), nodeID(3), nodeID(4)}
	rng := rand.New(rand.NewSource(7))
	picks := selectTargets(candidates, MixedByEra(validators), 2, rng)
	require.Len(t, picks, 2)

	var sawValidator, sawOther bool
	for _, id := range picks {
		if validators[id] {
			sawValidator = true
		} else {
			sawOther = true
		}
	}
	require.True(t, sawValidator && sawOther)
}

func TestFlakinessScheduleDropIsIdempotentPerPeer(t *testing.T) {
	fl := newFlakiness()
	id := nodeID(9)
	require.True(t, fl.scheduleDrop(id), "first schedule should succeed")
	require.False(t, fl.scheduleDrop(id), "second overlapping schedule is a silent no-op")
	fl.clear(id)
	require.True(t, fl.scheduleDrop(id), "after clearing, scheduling again succeeds")
}
