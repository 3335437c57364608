package txn

import (
	"time"

	"github.com/casper-network/casper-node-go/common"
)

// HoldTag distinguishes the two kinds of balance hold named in §3.
type HoldTag byte

const (
	HoldGas HoldTag = iota
	HoldProcessing
)

// HoldHandling selects how a hold's contribution to "unavailable balance"
// decays over its lifetime, per §3.
type HoldHandling byte

const (
	HoldAccrued HoldHandling = iota
	HoldAmortized
)

// BalanceHold is a record at (purse, block_time, tag) carrying a Motes
// amount, per §3.
type BalanceHold struct {
	Purse     common.PurseAddr
	Tag       HoldTag
	CreatedAt time.Time
	Amount    common.Motes
}

// ActiveAmount returns the hold's contribution to unavailable balance at now,
// under handling. Per §3 / §8: Accrued holds count in full until expiry, then
// zero; Amortized holds decay linearly from full at creation to zero at
// creation+interval.
func (h BalanceHold) ActiveAmount(now time.Time, handling HoldHandling, interval time.Duration) common.Motes {
	expiry := h.CreatedAt.Add(interval)
	if !now.Before(expiry) {
		return common.ZeroMotes()
	}
	switch handling {
	case HoldAccrued:
		return h.Amount
	case HoldAmortized:
		remaining := expiry.Sub(now)
		if remaining >= interval {
			return h.Amount
		}
		if remaining <= 0 {
			return common.ZeroMotes()
		}
		return h.Amount.MulRatio(uint64(remaining.Milliseconds()), uint64(interval.Milliseconds()))
	default:
		return h.Amount
	}
}

// InsufficientFundsPolicy configures hold-placement behavior on insufficient
// available balance, per §4.E.
type InsufficientFundsPolicy byte

const (
	InsufficientFundsNoop InsufficientFundsPolicy = iota
	InsufficientFundsHoldRemaining
)
