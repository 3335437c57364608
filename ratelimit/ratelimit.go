// Package ratelimit implements §5's resource policy: bounded per-peer rate
// limiting with separate buckets for inbound message rate and outbound byte
// rate, non-validators facing stricter limits than validators in the current
// era. Built on golang.org/x/time/rate, the standard token-bucket limiter
// used across the Go ecosystem for exactly this per-connection shaping.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Tier selects which bucket sizing a peer gets.
type Tier byte

const (
	TierValidator Tier = iota
	TierNonValidator
)

// Config bundles the two tiers' limiter parameters.
type Config struct {
	ValidatorMessagesPerSec    rate.Limit
	ValidatorBurstMessages     int
	ValidatorBytesPerSec       rate.Limit
	ValidatorBurstBytes        int
	NonValidatorMessagesPerSec rate.Limit
	NonValidatorBurstMessages  int
	NonValidatorBytesPerSec    rate.Limit
	NonValidatorBurstBytes     int
}

// PeerLimiter is the pair of buckets (§5: "separate buckets for inbound
// message rate and outbound byte rate") attached to one connection.
type PeerLimiter struct {
	messages *rate.Limiter
	bytes    *rate.Limiter
}

// NewPeerLimiter builds the limiter pair for tier.
func NewPeerLimiter(cfg Config, tier Tier) *PeerLimiter {
	if tier == TierValidator {
		return &PeerLimiter{
			messages: rate.NewLimiter(cfg.ValidatorMessagesPerSec, cfg.ValidatorBurstMessages),
			bytes:    rate.NewLimiter(cfg.ValidatorBytesPerSec, cfg.ValidatorBurstBytes),
		}
	}
	return &PeerLimiter{
		messages: rate.NewLimiter(cfg.NonValidatorMessagesPerSec, cfg.NonValidatorBurstMessages),
		bytes:    rate.NewLimiter(cfg.NonValidatorBytesPerSec, cfg.NonValidatorBurstBytes),
	}
}

// WaitMessage blocks until a message-rate permit is available. This is the
// "handler acquires a limiter permit at each message boundary" backpressure
// point of §5 — it is a suspension point, never held across with a lock.
func (p *PeerLimiter) WaitMessage(ctx context.Context) error {
	return p.messages.Wait(ctx)
}

// WaitBytes blocks until n bytes' worth of outbound byte-rate permit is
// available.
func (p *PeerLimiter) WaitBytes(ctx context.Context, n int) error {
	return p.bytes.WaitN(ctx, n)
}
