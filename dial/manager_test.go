package dial

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/casper-network/casper-node-go/crypto/identity"
)

func TestLearnAddrFirstLearningEmitsDialRequest(t *testing.T) {
	m := NewManager(DefaultConfig())
	addr := Addr{Host: "10.0.0.1", Port: 1234}
	now := time.Now()

	reqs := m.LearnAddr(addr, false, now)
	require.Len(t, reqs, 1)
	require.Equal(t, addr, reqs[0].Addr)
	require.NotEmpty(t, reqs[0].CorrelationID)

	// Re-learning an address already being driven toward Connected is a no-op.
	reqs = m.LearnAddr(addr, false, now)
	require.Empty(t, reqs)
}

func TestHandleDialOutcomeSuccessThenDropReconnects(t *testing.T) {
	m := NewManager(DefaultConfig())
	addr := Addr{Host: "10.0.0.2", Port: 1234}
	now := time.Now()
	m.LearnAddr(addr, false, now)

	node := identity.NodeId{}
	node[0] = 0x01
	reqs := m.HandleDialOutcome(addr, DialSuccessful, node, nil, now)
	require.Empty(t, reqs)
	require.Equal(t, []identity.NodeId{node}, m.ConnectedPeers())

	reqs = m.HandleConnectionDrop(addr, now.Add(time.Second))
	require.Len(t, reqs, 1)
	require.Empty(t, m.ConnectedPeers())
}

func TestHandleDialOutcomeFailedForgetsAfterRetryMax(t *testing.T) {
	m := NewManager(DefaultConfig())
	addr := Addr{Host: "10.0.0.3", Port: 1234}
	now := time.Now()
	m.LearnAddr(addr, false, now)

	for i := 0; i < RetryMax-1; i++ {
		reqs := m.HandleDialOutcome(addr, DialFailed, identity.NodeId{}, nil, now)
		require.Empty(t, reqs) // HandleDialOutcome schedules a retry via housekeeping, not directly
	}
	st := m.states[addr]
	require.Equal(t, StateWaiting, st.Kind)

	// One more failure crosses RetryMax and forgets the address.
	m.HandleDialOutcome(addr, DialFailed, identity.NodeId{}, nil, now)
	require.Equal(t, StateForgotten, m.states[addr].Kind)
}

func TestHandleDialOutcomeFailedUnforgettableNeverForgotten(t *testing.T) {
	m := NewManager(DefaultConfig())
	addr := Addr{Host: "10.0.0.4", Port: 1234}
	now := time.Now()
	m.LearnAddr(addr, true, now)

	for i := 0; i < RetryMax+5; i++ {
		m.HandleDialOutcome(addr, DialFailed, identity.NodeId{}, nil, now)
	}
	require.Equal(t, StateWaiting, m.states[addr].Kind)
}

func TestHandleDialOutcomeLoopbackForgetsImmediately(t *testing.T) {
	m := NewManager(DefaultConfig())
	addr := Addr{Host: "10.0.0.5", Port: 1234}
	now := time.Now()
	m.LearnAddr(addr, false, now)

	m.HandleDialOutcome(addr, DialLoopback, identity.NodeId{}, nil, now)
	require.Equal(t, StateForgotten, m.states[addr].Kind)
}

func TestBlockAddrJitterWithinConfiguredRange(t *testing.T) {
	cfg := DefaultConfig()
	m := NewManager(cfg)
	addr := Addr{Host: "10.0.0.6", Port: 1234}
	now := time.Now()
	rng := rand.New(rand.NewSource(1))

	m.BlockAddr(addr, BlockJustification{Reason: "wrong chainspec hash"}, now, rng)
	st := m.states[addr]
	require.Equal(t, StateBlocked, st.Kind)
	require.True(t, !st.BlockedUntil.Before(now.Add(cfg.UnblockMin)))
	require.True(t, !st.BlockedUntil.After(now.Add(cfg.UnblockMax)))
}

func TestBlockAddrKeepsLongerExistingDeadline(t *testing.T) {
	cfg := DefaultConfig()
	m := NewManager(cfg)
	addr := Addr{Host: "10.0.0.7", Port: 1234}
	now := time.Now()
	rng := rand.New(rand.NewSource(1))

	// Seed a deadline far beyond anything a fresh BlockAddr call could
	// compute, so the "keep the longer deadline" branch is exercised
	// deterministically rather than depending on two RNG draws comparing a
	// particular way.
	farFuture := now.Add(365 * 24 * time.Hour)
	m.states[addr] = &OutgoingState{Kind: StateBlocked, BlockedUntil: farFuture, Justification: BlockJustification{Reason: "first"}}

	m.BlockAddr(addr, BlockJustification{Reason: "second"}, now, rng)
	require.Equal(t, farFuture, m.states[addr].BlockedUntil)
	require.Equal(t, "second", m.states[addr].Justification.Reason) // justification still updates
}

func TestPerformHousekeepingTransitionsWaitingAndBlocked(t *testing.T) {
	m := NewManager(DefaultConfig())
	waiting := Addr{Host: "10.0.0.8", Port: 1}
	blocked := Addr{Host: "10.0.0.9", Port: 1}
	now := time.Now()

	m.LearnAddr(waiting, false, now)
	m.HandleDialOutcome(waiting, DialFailed, identity.NodeId{}, nil, now)

	rng := rand.New(rand.NewSource(2))
	m.BlockAddr(blocked, BlockJustification{Reason: "x"}, now, rng)
	m.states[blocked].BlockedUntil = now.Add(-time.Second) // force-expire for the test

	dials, unblocked := m.PerformHousekeeping(now.Add(time.Hour), rng)
	require.Len(t, dials, 1)
	require.Equal(t, waiting, dials[0].Addr)
	require.Equal(t, []Addr{blocked}, unblocked)
	require.Equal(t, StateLearned, m.states[blocked].Kind)
}

func TestRecordPongReportsExcessWithoutBlocking(t *testing.T) {
	m := NewManager(DefaultConfig())
	peer := identity.NodeId{}
	peer[0] = 0x09

	h := newHealthTracker()
	m.mu.Lock()
	m.health[peer] = h
	m.mu.Unlock()

	for i := 0; i < pongLimit+1; i++ {
		h.notePingSent(uint64(i), time.Now())
	}
	// The first pong leaves pongLimit pings unanswered, which reaches the
	// limit; once every ping has been answered nothing is outstanding.
	first := m.RecordPong(peer, 0)
	var last bool
	for i := 1; i < pongLimit+1; i++ {
		last = m.RecordPong(peer, uint64(i))
	}
	require.True(t, first)
	require.False(t, last)
}

func TestGetRouteUnknownPeer(t *testing.T) {
	m := NewManager(DefaultConfig())
	_, ok := m.GetRoute(identity.NodeId{})
	require.False(t, ok)
}

func TestCheckHealthPingsNewlyConnectedPeerImmediately(t *testing.T) {
	m := NewManager(DefaultConfig())
	peer := identity.NodeId{}
	peer[0] = 0x11

	due, sever := m.CheckHealth([]identity.NodeId{peer}, time.Now())
	require.Equal(t, []identity.NodeId{peer}, due)
	require.Empty(t, sever)
}

func TestCheckHealthNotDueBeforePingInterval(t *testing.T) {
	m := NewManager(DefaultConfig())
	peer := identity.NodeId{}
	peer[0] = 0x12
	now := time.Now()

	m.NotePingSent(peer, 1, now)
	due, sever := m.CheckHealth([]identity.NodeId{peer}, now.Add(PingInterval/2))
	require.Empty(t, due)
	require.Empty(t, sever)
}

func TestCheckHealthDueAfterPingIntervalElapses(t *testing.T) {
	m := NewManager(DefaultConfig())
	peer := identity.NodeId{}
	peer[0] = 0x13
	now := time.Now()

	m.NotePingSent(peer, 1, now)
	due, sever := m.CheckHealth([]identity.NodeId{peer}, now.Add(PingInterval+time.Second))
	require.Equal(t, []identity.NodeId{peer}, due)
	require.Empty(t, sever)
}

func TestCheckHealthSeversPeerThatExceedsPongLimit(t *testing.T) {
	m := NewManager(DefaultConfig())
	peer := identity.NodeId{}
	peer[0] = 0x14
	now := time.Now()

	for i := 0; i < pongLimit+1; i++ {
		m.NotePingSent(peer, uint64(i), now)
	}
	due, sever := m.CheckHealth([]identity.NodeId{peer}, now.Add(PingInterval+time.Second))
	require.Empty(t, due)
	require.Equal(t, []identity.NodeId{peer}, sever)
}

func TestCheckHealthForgetsDisconnectedPeers(t *testing.T) {
	m := NewManager(DefaultConfig())
	peer := identity.NodeId{}
	peer[0] = 0x15
	now := time.Now()

	m.NotePingSent(peer, 1, now)
	m.CheckHealth(nil, now)
	m.mu.Lock()
	_, tracked := m.health[peer]
	m.mu.Unlock()
	require.False(t, tracked)
}

func TestForgetHealthDropsTrackedPeer(t *testing.T) {
	m := NewManager(DefaultConfig())
	peer := identity.NodeId{}
	peer[0] = 0x16
	m.NotePingSent(peer, 1, time.Now())

	m.ForgetHealth(peer)
	m.mu.Lock()
	_, tracked := m.health[peer]
	m.mu.Unlock()
	require.False(t, tracked)
}
