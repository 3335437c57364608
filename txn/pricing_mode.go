// Package txn implements the data model of §3: transactions (legacy Deploy
// and V1), pricing modes, lanes, balance holds and execution results.
package txn

import "github.com/casper-network/casper-node-go/common"

// PricingModeKind tags a PricingMode's variant.
type PricingModeKind byte

const (
	PricingPaymentLimited PricingModeKind = iota
	PricingFixed
	PricingPrepaid
)

// PricingMode is the sum type of §3: PaymentLimited{...} | Fixed{...} | Prepaid{...}.
type PricingMode struct {
	Kind PricingModeKind

	// PaymentLimited
	PaymentAmount      common.Motes
	StandardPayment    bool

	// Fixed
	AdditionalComputationFactor uint8

	// Common to PaymentLimited and Fixed
	GasPriceTolerance uint64

	// Prepaid
	ReceiptHash common.Hash
}

// MeetsGasPriceTolerance is the admission invariant of §3:
// gas_price_tolerance >= chainspec.min_gas_price.
func (m PricingMode) MeetsGasPriceTolerance(minGasPrice uint64) bool {
	if m.Kind == PricingPrepaid {
		// A prepaid transaction has already locked in its price; the
		// tolerance check does not apply.
		return true
	}
	return m.GasPriceTolerance >= minGasPrice
}
