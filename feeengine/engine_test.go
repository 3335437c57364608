package feeengine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/casper-network/casper-node-go/common"
	"github.com/casper-network/casper-node-go/feeengine"
	"github.com/casper-network/casper-node-go/storage"
	"github.com/casper-network/casper-node-go/txn"
)

func newStore(t *testing.T) *storage.PebbleStore {
	t.Helper()
	s, err := storage.NewPebbleStore(t.TempDir(), 1<<20)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func purse(b byte) common.PurseAddr {
	var p common.PurseAddr
	p[0] = b
	return p
}

func fixedPricingConfig() feeengine.Config {
	return feeengine.Config{
		Refund:                 feeengine.RefundHandling{Kind: feeengine.RefundNone},
		Fee:                    feeengine.FeeHandling{Kind: feeengine.FeePayToProposer},
		GasHoldBalanceHandling: txn.HoldAccrued,
		BalanceHoldInterval:    time.Minute,
	}
}

// TestSettlePayToProposerRoutesFullCostOnSuccess covers the §8 scenario:
// valid WASM execution under PayToProposer + Fixed pricing routes the full
// cost (no refund configured) from payer to proposer.
func TestSettlePayToProposerRoutesFullCostOnSuccess(t *testing.T) {
	s := newStore(t)
	payer, proposer := purse(0x01), purse(0x02)
	s.SeedPurse(payer, common.NewMotes(1000))
	s.SeedPurse(proposer, common.ZeroMotes())

	cost := txn.CostUnderFixedPricing(100, 5)
	result := txn.ExecutionResult{Price: 5, Limit: 100, Consumed: 100, Cost: cost}

	settlement, err := feeengine.Settle(s, fixedPricingConfig(), payer, proposer, common.PurseAddr{}, result, time.Now())
	require.NoError(t, err)
	require.True(t, settlement.Refund.IsZero())
	require.Equal(t, 0, settlement.FeeRouted.Cmp(cost))

	payerBal, err := s.Balance(payer, txn.HoldAccrued, time.Now(), time.Minute)
	require.NoError(t, err)
	require.Equal(t, 0, payerBal.Total.Cmp(common.NewMotes(1000).Sub(cost)))

	proposerBal, err := s.Balance(proposer, txn.HoldAccrued, time.Now(), time.Minute)
	require.NoError(t, err)
	require.Equal(t, 0, proposerBal.Total.Cmp(cost))
}

// TestSettleRefundWithholdsOnErroneousExecution covers the §8 scenario:
// erroneous WASM under Refund + PayToProposer + Fixed pricing must refund
// nothing even though a refund ratio is configured, since a failed
// transaction forfeits its refund.
func TestSettleRefundWithholdsOnErroneousExecution(t *testing.T) {
	s := newStore(t)
	payer, proposer := purse(0x03), purse(0x04)
	s.SeedPurse(payer, common.NewMotes(1000))
	s.SeedPurse(proposer, common.ZeroMotes())

	cfg := fixedPricingConfig()
	cfg.Refund = feeengine.RefundHandling{Kind: feeengine.RefundRatio, Ratio: feeengine.Ratio{Numerator: 1, Denominator: 2}}

	cost := txn.CostUnderFixedPricing(100, 5)
	result := txn.ExecutionResult{Price: 5, Limit: 100, Consumed: 40, Cost: cost, ErrorMessage: "Revert(1)"}

	settlement, err := feeengine.Settle(s, cfg, payer, proposer, common.PurseAddr{}, result, time.Now())
	require.NoError(t, err)
	require.True(t, settlement.Refund.IsZero())
	require.Equal(t, 0, settlement.FeeRouted.Cmp(cost))
}

func TestSettleBurnFeeDestroysRemaining(t *testing.T) {
	s := newStore(t)
	payer := purse(0x05)
	s.SeedPurse(payer, common.NewMotes(1000))

	cfg := fixedPricingConfig()
	cfg.Fee = feeengine.FeeHandling{Kind: feeengine.FeeBurn}

	cost := txn.CostUnderFixedPricing(100, 5)
	result := txn.ExecutionResult{Price: 5, Limit: 100, Consumed: 100, Cost: cost}

	settlement, err := feeengine.Settle(s, cfg, payer, common.PurseAddr{}, common.PurseAddr{}, result, time.Now())
	require.NoError(t, err)
	require.Equal(t, 0, settlement.FeeBurned.Cmp(cost))
	require.Equal(t, 0, s.TotalBurned().Cmp(cost))
}

func TestSettleNoFeePlacesGasHold(t *testing.T) {
	s := newStore(t)
	payer := purse(0x06)
	s.SeedPurse(payer, common.NewMotes(1000))

	cfg := fixedPricingConfig()
	cfg.Fee = feeengine.FeeHandling{Kind: feeengine.FeeNoFee}

	cost := txn.CostUnderFixedPricing(100, 5)
	result := txn.ExecutionResult{Price: 5, Limit: 100, Consumed: 100, Cost: cost}

	now := time.Now()
	settlement, err := feeengine.Settle(s, cfg, payer, common.PurseAddr{}, common.PurseAddr{}, result, now)
	require.NoError(t, err)
	require.Equal(t, 0, settlement.FeeHeld.Cmp(cost))

	bal, err := s.Balance(payer, txn.HoldAccrued, now, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 0, bal.Available.Cmp(common.NewMotes(1000).Sub(cost)))
}

func TestSettleInsufficientBalanceHoldsRemainingUnderPolicy(t *testing.T) {
	s := newStore(t)
	payer := purse(0x07)
	s.SeedPurse(payer, common.NewMotes(50))

	cfg := fixedPricingConfig()
	cfg.Fee = feeengine.FeeHandling{Kind: feeengine.FeeNoFee}
	cfg.InsufficientFundsPolicy = txn.InsufficientFundsHoldRemaining

	cost := txn.CostUnderFixedPricing(100, 5) // 500, exceeds the 50 available
	result := txn.ExecutionResult{Price: 5, Limit: 100, Consumed: 100, Cost: cost}

	settlement, err := feeengine.Settle(s, cfg, payer, common.PurseAddr{}, common.PurseAddr{}, result, time.Now())
	require.NoError(t, err)
	require.Equal(t, 0, settlement.FeeHeld.Cmp(common.NewMotes(50)))
}

func TestSettleInsufficientBalanceErrorsUnderDefaultPolicy(t *testing.T) {
	s := newStore(t)
	payer := purse(0x08)
	s.SeedPurse(payer, common.NewMotes(50))

	cfg := fixedPricingConfig()
	cfg.Fee = feeengine.FeeHandling{Kind: feeengine.FeeNoFee}

	cost := txn.CostUnderFixedPricing(100, 5)
	result := txn.ExecutionResult{Price: 5, Limit: 100, Consumed: 100, Cost: cost}

	_, err := feeengine.Settle(s, cfg, payer, common.PurseAddr{}, common.PurseAddr{}, result, time.Now())
	require.Error(t, err)
}
