package dial

import (
	"time"

	"github.com/casper-network/casper-node-go/crypto/identity"
)

// SendHandle is the opaque, send-only channel endpoint §9's "Cyclic refs and
// arena patterns" design note describes: it owns its half of the socket, and
// the reader owns the other half, so the manager never holds a reference
// cycle back into a connection's reader task.
type SendHandle interface {
	// Close signals the writer task to exit on its next suspension point.
	Close()
}

// StateKind tags an OutgoingState's variant, per §3.
type StateKind byte

const (
	StateLearned StateKind = iota
	StateConnecting
	StateConnected
	StateWaiting
	StateBlocked
	StateForgotten
)

// OutgoingState is the tagged variant of §3:
// {Learned, Connecting{attempt}, Connected{node_id, handle},
//  Waiting{retry_at, attempts}, Blocked{until, justification}, Forgotten}.
//
// Exactly one state exists per address at a time (§3 invariant); the dial
// manager enforces that by keeping a single map keyed by Addr.
type OutgoingState struct {
	Kind StateKind

	Unforgettable bool // known-address: exempt from Forgotten, per §3

	// Connecting
	Attempt int

	// Connected
	NodeID identity.NodeId
	Handle SendHandle

	// Waiting
	RetryAt  time.Time
	Attempts int

	// Blocked
	BlockedUntil  time.Time
	Justification BlockJustification

	// Learned (and Forgotten, for diagnostics)
	LearnedAt time.Time
}

// BlockJustification records why an address was blocked, per §4.A "Blocking
// justifications".
type BlockJustification struct {
	Reason string
}
