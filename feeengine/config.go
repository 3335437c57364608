// Package feeengine implements §4.E: fee, refund and balance-hold handling
// applied to an already-executed transaction's {consumed, cost}.
package feeengine

import (
	"time"

	"github.com/casper-network/casper-node-go/txn"
)

// RefundHandlingKind tags the refund policy of §4.E.
type RefundHandlingKind byte

const (
	RefundNone RefundHandlingKind = iota
	RefundRatio
	RefundBurnRatio
)

// RefundHandling is the refund_handling configuration of §4.E.
type RefundHandling struct {
	Kind  RefundHandlingKind
	Ratio Ratio // numerator/denominator, used by RefundRatio and RefundBurnRatio
}

// FeeHandlingKind tags the fee-routing policy of §4.E.
type FeeHandlingKind byte

const (
	FeePayToProposer FeeHandlingKind = iota
	FeeBurn
	FeeAccumulate
	FeeNoFee
)

// FeeHandling is the fee_handling configuration of §4.E.
type FeeHandling struct {
	Kind FeeHandlingKind
}

// Ratio is a non-negative rational number numerator/denominator.
type Ratio struct {
	Numerator   uint64
	Denominator uint64
}

// Config bundles the accounting-relevant chainspec values of §6's
// Configuration subset.
type Config struct {
	Refund                  RefundHandling
	Fee                     FeeHandling
	GasHoldBalanceHandling  txn.HoldHandling
	BalanceHoldInterval     time.Duration
	InsufficientFundsPolicy txn.InsufficientFundsPolicy
}
