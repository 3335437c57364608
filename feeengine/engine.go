package feeengine

import (
	"time"

	"github.com/casper-network/casper-node-go/common"
	"github.com/casper-network/casper-node-go/storage"
	"github.com/casper-network/casper-node-go/txn"
	"github.com/ethereum/go-ethereum/log"
)

// ComputeRefund derives the refund amount for an executed transaction, per §4.E:
//   - NoRefund: 0.
//   - Refund{ratio}: r*(cost - consumed*price) on success, 0 on failure — a
//     failed (erroneous WASM) transaction is punitively refunded nothing even
//     under a refund regime, per §4.E / §8 scenario 2.
//   - Burn{ratio}: the same amount as Refund, destroyed rather than returned.
func ComputeRefund(result txn.ExecutionResult, refund RefundHandling) common.Motes {
	if refund.Kind == RefundNone {
		return common.ZeroMotes()
	}
	if result.Failed() {
		return common.ZeroMotes()
	}
	consumedCost := common.NewMotesFromUint64(result.Consumed).Mul(result.Price)
	unconsumed, ok := result.Cost.SubChecked(consumedCost)
	if !ok {
		return common.ZeroMotes()
	}
	return unconsumed.MulRatio(refund.Ratio.Numerator, refund.Ratio.Denominator)
}

// Settlement records what Settle actually did, for logging/metrics/tests.
type Settlement struct {
	Refund       common.Motes
	RefundBurned bool
	FeeRouted    common.Motes
	FeeBurned    common.Motes
	FeeHeld      common.Motes
}

// Settle applies §4.E to an executed transaction: it computes the refund,
// routes the remaining cost per fee_handling, and — under NoFee — places a
// gas hold instead of charging. payer is the initiator's purse; proposer is
// the block proposer's purse; accumulation is the shared fee-accumulation
// purse (only read under FeeAccumulate).
func Settle(store storage.Store, cfg Config, payer, proposer, accumulation common.PurseAddr, result txn.ExecutionResult, now time.Time) (Settlement, error) {
	refund := ComputeRefund(result, cfg.Refund)
	var out Settlement
	out.Refund = refund

	remaining, ok := result.Cost.SubChecked(refund)
	if !ok {
		remaining = common.ZeroMotes()
	}

	if cfg.Refund.Kind == RefundBurnRatio && !refund.IsZero() {
		if err := store.Debit(payer, refund); err != nil {
			return out, err
		}
		if err := store.Burn(refund); err != nil {
			return out, err
		}
		out.RefundBurned = true
		log.Debug("fee engine burned refund", "purse", payer, "amount", refund.String())
	}

	switch cfg.Fee.Kind {
	case FeePayToProposer:
		if err := chargeAndCredit(store, cfg, payer, proposer, remaining, now); err != nil {
			return out, err
		}
		out.FeeRouted = remaining

	case FeeBurn:
		if err := store.Debit(payer, remaining); err != nil {
			return out, err
		}
		if err := store.Burn(remaining); err != nil {
			return out, err
		}
		out.FeeBurned = remaining

	case FeeAccumulate:
		if err := chargeAndCredit(store, cfg, payer, accumulation, remaining, now); err != nil {
			return out, err
		}
		out.FeeRouted = remaining

	case FeeNoFee:
		hold := txn.BalanceHold{
			Purse:     payer,
			Tag:       txn.HoldGas,
			CreatedAt: now,
			Amount:    remaining,
		}
		placed, err := placeHoldRespectingPolicy(store, cfg, hold, now)
		if err != nil {
			return out, err
		}
		out.FeeHeld = placed
	}

	log.Info("fee engine settled transaction",
		"initiator", payer,
		"refund", out.Refund.String(),
		"fee_routed", out.FeeRouted.String(),
		"fee_burned", out.FeeBurned.String(),
		"fee_held", out.FeeHeld.String(),
	)
	return out, nil
}

func chargeAndCredit(store storage.Store, cfg Config, payer, recipient common.PurseAddr, amount common.Motes, now time.Time) error {
	if amount.IsZero() {
		return nil
	}
	bal, err := store.Balance(payer, cfg.GasHoldBalanceHandling, now, cfg.BalanceHoldInterval)
	if err != nil {
		return err
	}
	if bal.Available.LessThan(amount) {
		switch cfg.InsufficientFundsPolicy {
		case txn.InsufficientFundsHoldRemaining:
			amount = bal.Available
		default:
			return ErrInsufficientBalance(payer, amount)
		}
	}
	if err := store.Debit(payer, amount); err != nil {
		return err
	}
	return store.Credit(recipient, amount)
}

func placeHoldRespectingPolicy(store storage.Store, cfg Config, hold txn.BalanceHold, now time.Time) (common.Motes, error) {
	bal, err := store.Balance(hold.Purse, cfg.GasHoldBalanceHandling, now, cfg.BalanceHoldInterval)
	if err != nil {
		return common.Motes{}, err
	}
	if bal.Available.LessThan(hold.Amount) {
		switch cfg.InsufficientFundsPolicy {
		case txn.InsufficientFundsHoldRemaining:
			// Holding only what is available prevents an attacker from
			// draining a balance to "just below" the hold requirement to
			// force repeated wasted validation work, per §4.E.
			hold.Amount = bal.Available
		default:
			return common.Motes{}, ErrInsufficientBalance(hold.Purse, hold.Amount)
		}
	}
	if err := store.PlaceHold(hold); err != nil {
		return common.Motes{}, err
	}
	return hold.Amount, nil
}
