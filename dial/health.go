package dial

import "time"

// Health protocol constants, per §4.A.
const (
	PingInterval = 30 * time.Second
	PingTimeout  = 6 * time.Second
	PingRetries  = 5
)

func init() {
	if PingTimeout >= PingInterval {
		panic("dial: PING_TIMEOUT must be < PING_INTERVAL")
	}
}

// healthTracker counts outstanding (unanswered) pings for one peer. A pong
// limit of (1 + PING_RETRIES) * 2 outstanding pongs, as named in §4.A,
// triggers a true return from recordPong so the caller can sever the
// connection.
type healthTracker struct {
	outstanding int
	lastNonce   uint64
	lastPingAt  time.Time
}

func newHealthTracker() *healthTracker { return &healthTracker{} }

const pongLimit = (1 + PingRetries) * 2

// duePing reports whether PING_INTERVAL has elapsed since the last ping was
// sent, or none has been sent yet.
func (h *healthTracker) duePing(now time.Time) bool {
	return h.lastPingAt.IsZero() || now.Sub(h.lastPingAt) >= PingInterval
}

// notePingSent records that a ping was sent without a matching pong yet.
func (h *healthTracker) notePingSent(nonce uint64, now time.Time) {
	h.outstanding++
	h.lastNonce = nonce
	h.lastPingAt = now
}

// recordPong records an arriving pong and reports whether the peer has
// exceeded the outstanding-pong limit.
func (h *healthTracker) recordPong(nonce uint64) bool {
	if h.outstanding > 0 {
		h.outstanding--
	}
	return h.outstanding >= pongLimit
}
