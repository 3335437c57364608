package pricing

import (
	"github.com/casper-network/casper-node-go/common"
	"github.com/casper-network/casper-node-go/txn"
	"github.com/holiman/uint256"
)

// GasPriceBounds is the per-era gas price window of §4.D:
// current_gas_price in [min_gas_price, max_gas_price].
type GasPriceBounds struct {
	Min uint64
	Max uint64
}

// Clamp confines price to the bounds.
func (b GasPriceBounds) Clamp(price uint64) uint64 {
	if price < b.Min {
		return b.Min
	}
	if price > b.Max {
		return b.Max
	}
	return price
}

// MintTransferCost is the chain's fixed cost for a native transfer, used both
// as the PaymentLimited transfer gas limit and — per the §9 design note — as
// the gas cost charged regardless of the user's declared payment amount.
type MintTransferCost uint64

// Classify assigns tx to exactly one lane and derives its gas limit, per
// §4.D. currentGasPrice is the per-era price already clamped to
// [min_gas_price, max_gas_price].
func Classify(tx txn.Transaction, lanes txn.LaneTable, mintCost MintTransferCost, currentGasPrice uint64) (txn.Lane, uint64, common.Motes, error) {
	switch {
	case tx.IsTransfer():
		// Transfers always land in the MINT lane regardless of size, per §4.D.
		limit := classifyTransferGasLimit(tx, mintCost)
		return lanes.Mint, limit, costOf(limit, currentGasPrice), nil

	case tx.IsAuction():
		limit := lanes.Auction.MaxTransactionGasLimit
		return lanes.Auction, limit, costOf(limit, currentGasPrice), nil

	default:
		mode := tx.PricingMode()
		size := tx.SerializedSize()
		argsLen := tx.SerializedArgsLength()
		var lane txn.Lane
		var ok bool
		switch mode.Kind {
		case txn.PricingFixed:
			lane, ok = smallestWasmLaneFixed(lanes.Wasm, size, argsLen, mode.AdditionalComputationFactor)
		case txn.PricingPaymentLimited:
			paymentAmount := mode.PaymentAmount.Big().Uint64()
			lane, ok = smallestWasmLanePaymentLimited(lanes.Wasm, size, argsLen, paymentAmount)
		default:
			// Prepaid transactions reuse the lane their receipt already priced;
			// callers resolve that lane before calling Classify and should not
			// reach this branch. Treated as a classification failure if they do.
			return txn.Lane{}, 0, common.Motes{}, ErrNoLaneMatch("prepaid transaction requires pre-resolved lane")
		}
		if !ok {
			return txn.Lane{}, 0, common.Motes{}, ErrNoLaneMatch("no wasm lane bounds admit this transaction")
		}

		limit := gasLimitForWasm(mode, lane)
		return lane, limit, costOf(limit, currentGasPrice), nil
	}
}

func classifyTransferGasLimit(tx txn.Transaction, mintCost MintTransferCost) uint64 {
	mode := tx.PricingMode()
	if mode.Kind == txn.PricingFixed {
		return uint64(mintCost)
	}
	// Under PaymentLimited, a transfer's gas cost is fixed at the chain's
	// mint-transfer cost regardless of the declared payment amount — per the
	// §9 open question, this is surprising but deliberate in the original
	// implementation and is reproduced verbatim, not "fixed".
	return uint64(mintCost)
}

func smallestWasmLaneFixed(wasm []txn.Lane, size, argsLen uint64, additionalComputationFactor uint8) (txn.Lane, bool) {
	for _, l := range wasm {
		if l.MaxSerializedLength >= size &&
			l.MaxRuntimeArgsLength >= argsLen &&
			uint8(l.ID) >= additionalComputationFactor {
			return l, true
		}
	}
	return txn.Lane{}, false
}

func smallestWasmLanePaymentLimited(wasm []txn.Lane, size, argsLen, paymentAmount uint64) (txn.Lane, bool) {
	for _, l := range wasm {
		if l.MaxTransactionGasLimit >= paymentAmount &&
			l.MaxSerializedLength >= size &&
			l.MaxRuntimeArgsLength >= argsLen {
			return l, true
		}
	}
	return txn.Lane{}, false
}

func gasLimitForWasm(mode txn.PricingMode, lane txn.Lane) uint64 {
	if mode.Kind == txn.PricingPaymentLimited {
		return mode.PaymentAmount.Big().Uint64()
	}
	return lane.MaxTransactionGasLimit
}

func costOf(limit, price uint64) common.Motes {
	// uint256 catches a limit*price overflow within 256 bits (it cannot occur
	// for realistic gas limits/prices) before the result is widened into the
	// 512-bit Motes domain used for balances and holds.
	product := new(uint256.Int).Mul(uint256.NewInt(limit), uint256.NewInt(price))
	return common.MotesFromBig(product.ToBig())
}
