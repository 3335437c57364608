package dial

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/casper-network/casper-node-go/crypto/identity"
	"github.com/ethereum/go-ethereum/log"
)

// RetryMax is the maximum number of Failed outcomes before an address is
// forgotten, per §3.
const RetryMax = 8

// Config bundles 4.A's tunables.
type Config struct {
	BaseBackoff       time.Duration // BASE in BASE x 2^attempt, §4.A
	MaxAddrPendingTime time.Duration
	UnblockMin        time.Duration
	UnblockMax        time.Duration
}

// DefaultConfig matches the constants named in §4.A/§6.
func DefaultConfig() Config {
	return Config{
		BaseBackoff:        time.Second,
		MaxAddrPendingTime: 2 * time.Minute,
		UnblockMin:         1 * time.Minute,
		UnblockMax:         10 * time.Minute,
	}
}

// DialRequest is an effect the manager emits for the overlay to execute: dial
// addr. The manager never opens sockets itself (§5's cooperative event loop:
// handlers return effect descriptors the runtime dispatches). CorrelationID
// ties every log line for one dial attempt together, from the moment the
// manager emits the request through the overlay's handshake outcome.
type DialRequest struct {
	Addr          Addr
	CorrelationID string
}

func newDialRequest(addr Addr) DialRequest {
	return DialRequest{Addr: addr, CorrelationID: uuid.NewString()}
}

// Manager is the Outgoing Connection Manager of §4.A.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	states  map[Addr]*OutgoingState
	health  map[identity.NodeId]*healthTracker
	addrOf  map[identity.NodeId]Addr
}

// NewManager constructs an empty Manager.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:    cfg,
		states: make(map[Addr]*OutgoingState),
		health: make(map[identity.NodeId]*healthTracker),
		addrOf: make(map[identity.NodeId]Addr),
	}
}

// LearnAddr implements learn_addr: first learning transitions Learned ->
// Connecting; re-learning is idempotent; unforgettable addresses are exempt
// from Forgotten, per §4.A.
func (m *Manager) LearnAddr(addr Addr, unforgettable bool, now time.Time) []DialRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, exists := m.states[addr]
	if !exists {
		m.states[addr] = &OutgoingState{Kind: StateConnecting, Unforgettable: unforgettable, LearnedAt: now}
		log.Debug("dial: learned new address", "addr", addr, "unforgettable", unforgettable)
		return []DialRequest{newDialRequest(addr)}
	}
	if unforgettable {
		st.Unforgettable = true
	}
	if st.Kind == StateForgotten && unforgettable {
		st.Kind = StateConnecting
		return []DialRequest{newDialRequest(addr)}
	}
	// Re-learning an address already in any other state is a no-op: the
	// manager is already driving it toward Connected.
	return nil
}

// DialOutcomeKind tags the result of executing a DialRequest, per §4.A.
type DialOutcomeKind byte

const (
	DialSuccessful DialOutcomeKind = iota
	DialFailed
	DialLoopback
)

// HandleDialOutcome implements handle_dial_outcome, per §4.A.
func (m *Manager) HandleDialOutcome(addr Addr, outcome DialOutcomeKind, nodeID identity.NodeId, handle SendHandle, now time.Time) []DialRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[addr]
	if !ok {
		return nil
	}

	switch outcome {
	case DialSuccessful:
		st.Kind = StateConnected
		st.NodeID = nodeID
		st.Handle = handle
		st.Attempt = 0
		m.addrOf[nodeID] = addr
		log.Info("dial: connected", "addr", addr, "node", nodeID)
		return nil

	case DialLoopback:
		// Our own address: mark and never retry.
		st.Kind = StateForgotten
		log.Debug("dial: loopback address discarded", "addr", addr)
		return nil

	case DialFailed:
		attempt := st.Attempt + 1
		if attempt >= RetryMax && !st.Unforgettable {
			st.Kind = StateForgotten
			log.Info("dial: forgetting address after max retries", "addr", addr, "attempts", attempt)
			return nil
		}
		backoff := m.cfg.BaseBackoff * time.Duration(1<<uint(min(attempt, 30)))
		st.Kind = StateWaiting
		st.Attempt = attempt
		st.Attempts = attempt
		st.RetryAt = now.Add(backoff)
		log.Debug("dial: scheduling retry", "addr", addr, "attempt", attempt, "backoff", backoff)
		return nil
	}
	return nil
}

// HandleConnectionDrop implements handle_connection_drop: move Connected ->
// Waiting and reconnect, per §4.A.
func (m *Manager) HandleConnectionDrop(addr Addr, now time.Time) []DialRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[addr]
	if !ok || st.Kind != StateConnected {
		return nil
	}
	delete(m.addrOf, st.NodeID)
	delete(m.health, st.NodeID)
	st.Kind = StateWaiting
	st.RetryAt = now
	st.Attempts = 0
	log.Info("dial: connection dropped", "addr", addr)
	return []DialRequest{newDialRequest(addr)}
}

// BlockAddr implements block_addr: move to Blocked with a random duration in
// [unblock_min, unblock_max] to avoid synchronized unblocks across the
// network, per §4.A. Already-blocked addresses keep the longer deadline.
func (m *Manager) BlockAddr(addr Addr, justification BlockJustification, now time.Time, rng *rand.Rand) []DialRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	span := m.cfg.UnblockMax - m.cfg.UnblockMin
	var jitter time.Duration
	if span > 0 {
		jitter = time.Duration(rng.Int63n(int64(span)))
	}
	until := now.Add(m.cfg.UnblockMin + jitter)

	st, ok := m.states[addr]
	if !ok {
		m.states[addr] = &OutgoingState{Kind: StateBlocked, BlockedUntil: until, Justification: justification}
		return nil
	}
	if st.Kind == StateConnected {
		delete(m.addrOf, st.NodeID)
		delete(m.health, st.NodeID)
	}
	if st.Kind == StateBlocked && st.BlockedUntil.After(until) {
		// Already blocked with a longer deadline: keep it.
		st.Justification = justification
		return nil
	}
	st.Kind = StateBlocked
	st.BlockedUntil = until
	st.Justification = justification
	log.Info("dial: blocked address", "addr", addr, "until", until, "reason", justification.Reason)
	return nil
}

// PerformHousekeeping implements perform_housekeeping, called every second
// per §4.A: sweeps Waiting entries whose retry_at <= now into Connecting,
// transitions Blocked entries whose deadline passed into Learned, and
// forgets Learned entries older than max_addr_pending_time.
func (m *Manager) PerformHousekeeping(now time.Time, rng *rand.Rand) ([]DialRequest, []Addr) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var dials []DialRequest
	var unblocked []Addr

	for addr, st := range m.states {
		switch st.Kind {
		case StateWaiting:
			if !st.RetryAt.After(now) {
				st.Kind = StateConnecting
				dials = append(dials, newDialRequest(addr))
			}
		case StateBlocked:
			if !st.BlockedUntil.After(now) {
				st.Kind = StateLearned
				st.LearnedAt = now
				unblocked = append(unblocked, addr)
			}
		case StateLearned:
			if !st.Unforgettable && now.Sub(st.LearnedAt) > m.cfg.MaxAddrPendingTime {
				st.Kind = StateForgotten
			}
		}
	}
	_ = rng // reserved: future housekeeping randomization hooks into the same rng.
	return dials, unblocked
}

// RecordPong implements record_pong: health tracking; returns true if this
// peer exceeded (1 + PING_RETRIES) * 2 outstanding pongs, per §4.A. Per the §9
// open question, the manager no longer blocks on this — it only reports the
// excess for the caller to log/meter.
func (m *Manager) RecordPong(peer identity.NodeId, nonce uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.health[peer]
	if !ok {
		h = newHealthTracker()
		m.health[peer] = h
	}
	return h.recordPong(nonce)
}

// NotePingSent records that a ping with nonce was just sent to peer, for
// CheckHealth's PING_INTERVAL/PING_TIMEOUT bookkeeping.
func (m *Manager) NotePingSent(peer identity.NodeId, nonce uint64, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.health[peer]
	if !ok {
		h = newHealthTracker()
		m.health[peer] = h
	}
	h.notePingSent(nonce, now)
}

// CheckHealth drives §4.A's active health protocol for the given set of
// currently connected peers: a peer whose outstanding unanswered pings have
// reached the pong limit (PING_TIMEOUT exceeded PING_RETRIES times over) is
// reported in sever; otherwise, a peer for which PING_INTERVAL has elapsed
// since the last ping is reported in due. Peers no longer in connected have
// their health tracking dropped.
func (m *Manager) CheckHealth(connected []identity.NodeId, now time.Time) (due []identity.NodeId, sever []identity.NodeId) {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := make(map[identity.NodeId]bool, len(connected))
	for _, id := range connected {
		live[id] = true
		h, ok := m.health[id]
		if !ok {
			h = newHealthTracker()
			m.health[id] = h
		}
		if h.outstanding >= pongLimit {
			sever = append(sever, id)
			continue
		}
		if h.duePing(now) {
			due = append(due, id)
		}
	}
	for id := range m.health {
		if !live[id] {
			delete(m.health, id)
		}
	}
	return due, sever
}

// ForgetHealth drops health tracking for peer, called on disconnect so a
// reconnecting peer starts with a clean ping history.
func (m *Manager) ForgetHealth(peer identity.NodeId) {
	m.mu.Lock()
	delete(m.health, peer)
	m.mu.Unlock()
}

// ConnectedPeers returns the NodeIds currently in the Connected state.
func (m *Manager) ConnectedPeers() []identity.NodeId {
	m.mu.Lock()
	defer m.mu.Unlock()
	peers := make([]identity.NodeId, 0, len(m.addrOf))
	for id := range m.addrOf {
		peers = append(peers, id)
	}
	return peers
}

// GetRoute returns the SendHandle for an active outgoing connection to peer.
func (m *Manager) GetRoute(peer identity.NodeId) (SendHandle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	addr, ok := m.addrOf[peer]
	if !ok {
		return nil, false
	}
	st := m.states[addr]
	if st == nil || st.Kind != StateConnected {
		return nil, false
	}
	return st.Handle, true
}

