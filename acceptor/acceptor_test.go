package acceptor

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/casper-network/casper-node-go/common"
	casperCrypto "github.com/casper-network/casper-node-go/crypto"
	"github.com/casper-network/casper-node-go/storage"
	"github.com/casper-network/casper-node-go/txn"
)

func testConfig() Config {
	return Config{
		ChainName:                "casper-test",
		MinGasPrice:              1,
		MaxGasPrice:              10,
		MaxFutureTimestampLeeway: 5 * time.Second,
		MaxTTL:                   30 * time.Minute,
		MaxApprovals:             10,
		NativeTransferMinimum:    common.NewMotesFromUint64(2_500_000_000),
		MintTransferCost:         100_000,
		Lanes: txn.LaneTable{
			Mint:    txn.Lane{ID: txn.MintLaneID, MaxTransactionGasLimit: 100_000},
			Auction: txn.Lane{ID: txn.AuctionLaneID, MaxTransactionGasLimit: 200_000},
		},
	}
}

// buildTransfer constructs a signed, self-consistent V1 native transfer
// transaction for a given amount, chain name and timestamp.
func buildTransfer(t *testing.T, amount common.Motes, chainName string, ts time.Time, ttl time.Duration) txn.Transaction {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	pk := casperCrypto.PublicKey{Algorithm: casperCrypto.AlgorithmEd25519, Bytes: pub}

	amountText, err := amount.MarshalText()
	require.NoError(t, err)

	v1 := &txn.TransactionV1{
		Header: txn.TransactionV1Header{
			InitiatorPublicKey: pk,
			ChainName:          chainName,
			Timestamp:          ts,
			TTL:                ttl,
			PricingMode: txn.PricingMode{
				Kind:              txn.PricingFixed,
				GasPriceTolerance: 5,
			},
		},
		Body: txn.TransactionV1Body{
			Category: txn.CategoryMint,
			Fields: map[txn.FieldIndex][]byte{
				txn.FieldTransferAmount: amountText,
				txn.FieldTransferTarget: make([]byte, common.HashLength),
			},
		},
	}
	v1.Header.BodyHash = v1.ComputeBodyHash()
	hash := v1.ComputeHash()
	v1.SetHash(hash)

	sig := ed25519.Sign(priv, hash[:])
	v1.Approvals = []txn.Approval{{
		Signer:    pk,
		Signature: casperCrypto.Signature{Algorithm: casperCrypto.AlgorithmEd25519, Bytes: sig},
	}}

	return txn.Transaction{Kind: txn.KindV1, V1: v1}
}

// fakeStore is a minimal storage.Store stub: every validate() test below only
// exercises the client-only associated-keys check (step 11), which treats an
// account absent from the store as new and self-authorizing.
type fakeStore struct{}

func (fakeStore) ReadAccount(common.AccountHash) (*storage.Account, bool) { return nil, false }
func (fakeStore) ReadEntity(common.AccountHash) (*storage.Entity, bool)   { return nil, false }
func (fakeStore) Query(common.Hash, common.Hash, []string) (storage.QueryResult, []byte) {
	return storage.QueryValueNotFound, nil
}
func (fakeStore) Balance(common.PurseAddr, txn.HoldHandling, time.Time, time.Duration) (storage.BalanceResult, error) {
	return storage.BalanceResult{}, nil
}
func (fakeStore) PutTransaction(txn.Transaction) (bool, error)        { return true, nil }
func (fakeStore) GetTransactionByHash(common.Hash) (txn.Transaction, bool) {
	return txn.Transaction{}, false
}
func (fakeStore) LookupContract(storage.ContractIdentifier) (storage.ContractInfo, error) {
	return storage.ContractInfo{}, nil
}
func (fakeStore) Debit(common.PurseAddr, common.Motes) error      { return nil }
func (fakeStore) Credit(common.PurseAddr, common.Motes) error     { return nil }
func (fakeStore) Burn(common.Motes) error                         { return nil }
func (fakeStore) PlaceHold(txn.BalanceHold) error                 { return nil }

func TestAcceptValidTransferIsAccepted(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	tx := buildTransfer(t, common.NewMotesFromUint64(3_000_000_000), cfg.ChainName, now, 10*time.Minute)

	a := &Acceptor{cfg: cfg, store: fakeStore{}, currentGasPrice: 1}
	lane, limit, _, err := a.validate(tx, SourceClient, now)
	require.NoError(t, err)
	require.Equal(t, txn.MintLaneID, lane.ID)
	require.Equal(t, uint64(cfg.MintTransferCost), limit)
}

func TestAcceptRejectsWrongChainName(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	tx := buildTransfer(t, common.NewMotesFromUint64(3_000_000_000), "some-other-chain", now, 10*time.Minute)

	a := &Acceptor{cfg: cfg, store: fakeStore{}, currentGasPrice: 1}
	_, _, _, err := a.validate(tx, SourceClient, now)
	require.Error(t, err)
	aerr, ok := err.(*Error)
	require.True(t, ok)
	require.Equal(t, ErrWrongChain, aerr.Kind)
}

func TestAcceptRejectsTransferBelowMinimum(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	tx := buildTransfer(t, common.NewMotesFromUint64(1), cfg.ChainName, now, 10*time.Minute)

	a := &Acceptor{cfg: cfg, store: fakeStore{}, currentGasPrice: 1}
	_, _, _, err := a.validate(tx, SourceClient, now)
	require.Error(t, err)
	aerr, ok := err.(*Error)
	require.True(t, ok)
	require.Equal(t, ErrTransferBelowMinimum, aerr.Kind)
}

func TestAcceptClientExpiredTransactionRejectedButPeerExempted(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	past := now.Add(-time.Hour)
	tx := buildTransfer(t, common.NewMotesFromUint64(3_000_000_000), cfg.ChainName, past, time.Minute)

	a := &Acceptor{cfg: cfg, store: fakeStore{}, currentGasPrice: 1}

	_, _, _, errClient := a.validate(tx, SourceClient, now)
	require.Error(t, errClient)
	aerr, ok := errClient.(*Error)
	require.True(t, ok)
	require.Equal(t, ErrExpired, aerr.Kind)

	// Peer-relayed: the same expired transaction is accepted, per the §8
	// "peer-sent expired transaction accepted" scenario.
	_, _, _, errPeer := a.validate(tx, SourcePeer, now)
	require.NoError(t, errPeer)
}

func TestValidateRejectsGasLimitExceedingBlockGasLimit(t *testing.T) {
	cfg := testConfig()
	cfg.BlockGasLimit = uint64(cfg.MintTransferCost) - 1
	now := time.Now()
	tx := buildTransfer(t, common.NewMotesFromUint64(3_000_000_000), cfg.ChainName, now, 10*time.Minute)

	a := &Acceptor{cfg: cfg, store: fakeStore{}, currentGasPrice: 1}
	_, _, _, err := a.validate(tx, SourceClient, now)
	require.Error(t, err)
	aerr, ok := err.(*Error)
	require.True(t, ok)
	require.Equal(t, ErrGasLimitExceedsBlock, aerr.Kind)
}

// buildLegacyModuleBytesDeploy constructs a signed, self-consistent legacy
// Deploy whose session is raw module bytes (a non-transfer), with payment
// set to amount.
func buildLegacyModuleBytesDeploy(t *testing.T, amount common.Motes, chainName string, ts time.Time, ttl time.Duration) txn.Transaction {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	pk := casperCrypto.PublicKey{Algorithm: casperCrypto.AlgorithmEd25519, Bytes: pub}

	d := &txn.Deploy{
		Header: txn.DeployHeader{
			InitiatorPublicKey: pk,
			Timestamp:          ts,
			TTL:                ttl,
			GasPriceTolerance:  5,
			ChainName:          chainName,
		},
		Payment: txn.ExecutableDeployItem{Kind: txn.ItemModuleBytes, Amount: amount},
		Session: txn.ExecutableDeployItem{Kind: txn.ItemModuleBytes},
	}
	d.Header.BodyHash = d.ComputeBodyHash()
	hash := d.ComputeHash()
	d.SetHash(hash)

	sig := ed25519.Sign(priv, hash[:])
	d.Approvals = []txn.Approval{{
		Signer:    pk,
		Signature: casperCrypto.Signature{Algorithm: casperCrypto.AlgorithmEd25519, Bytes: sig},
	}}

	return txn.Transaction{Kind: txn.KindLegacy, Legacy: d}
}

func TestValidateRejectsLegacyDeployPaymentBelowBaseline(t *testing.T) {
	cfg := testConfig()
	cfg.Lanes.Wasm = []txn.Lane{{ID: 2, MaxSerializedLength: 1 << 20, MaxRuntimeArgsLength: 1 << 20, MaxTransactionGasLimit: 5_000_000_000}}
	cfg.BaselineMotes = common.NewMotesFromUint64(2_500_000_000)
	now := time.Now()
	tx := buildLegacyModuleBytesDeploy(t, common.NewMotesFromUint64(1_000_000_000), cfg.ChainName, now, 10*time.Minute)

	a := &Acceptor{cfg: cfg, store: fakeStore{}, currentGasPrice: 1}
	_, _, _, err := a.validate(tx, SourceClient, now)
	require.Error(t, err)
	aerr, ok := err.(*Error)
	require.True(t, ok)
	require.Equal(t, ErrInvalidPaymentMode, aerr.Kind)
}

func TestValidateAcceptsLegacyDeployPaymentAtOrAboveBaseline(t *testing.T) {
	cfg := testConfig()
	cfg.Lanes.Wasm = []txn.Lane{{ID: 2, MaxSerializedLength: 1 << 20, MaxRuntimeArgsLength: 1 << 20, MaxTransactionGasLimit: 5_000_000_000}}
	cfg.BaselineMotes = common.NewMotesFromUint64(2_500_000_000)
	now := time.Now()
	tx := buildLegacyModuleBytesDeploy(t, common.NewMotesFromUint64(2_500_000_000), cfg.ChainName, now, 10*time.Minute)

	a := &Acceptor{cfg: cfg, store: fakeStore{}, currentGasPrice: 1}
	_, _, _, err := a.validate(tx, SourceClient, now)
	require.NoError(t, err)
}

// accountStore wraps fakeStore but reports a stored account with a
// below-baseline available balance, for exercising the client-only
// baseline-balance check (step 11).
type accountStore struct {
	fakeStore
	account *storage.Account
	balance storage.BalanceResult
}

func (s accountStore) ReadAccount(common.AccountHash) (*storage.Account, bool) {
	return s.account, true
}

func (s accountStore) Balance(common.PurseAddr, txn.HoldHandling, time.Time, time.Duration) (storage.BalanceResult, error) {
	return s.balance, nil
}

func TestValidateRejectsInsufficientBalanceUnderBaseline(t *testing.T) {
	cfg := testConfig()
	cfg.BaselineMotes = common.NewMotesFromUint64(2_500_000_000)
	now := time.Now()
	tx := buildTransfer(t, common.NewMotesFromUint64(3_000_000_000), cfg.ChainName, now, 10*time.Minute)

	initiatorKey := tx.InitiatorPublicKey()
	keyHash := common.HashData(append([]byte{byte(initiatorKey.Algorithm)}, initiatorKey.Bytes...))

	store := accountStore{
		account: &storage.Account{
			ActionThreshold: 1,
			AssociatedKeys:  map[common.AccountHash]uint8{keyHash: 1},
		},
		balance: storage.BalanceResult{Available: common.NewMotesFromUint64(1_000_000_000)},
	}

	a := &Acceptor{cfg: cfg, store: store, currentGasPrice: 1}
	_, _, _, err := a.validate(tx, SourceClient, now)
	require.Error(t, err)
	aerr, ok := err.(*Error)
	require.True(t, ok)
	require.Equal(t, ErrInsufficientBalance, aerr.Kind)
}

func TestAcceptRejectsFutureTimestampRegardlessOfSource(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	future := now.Add(time.Hour)
	tx := buildTransfer(t, common.NewMotesFromUint64(3_000_000_000), cfg.ChainName, future, 10*time.Minute)

	a := &Acceptor{cfg: cfg, store: fakeStore{}, currentGasPrice: 1}
	_, _, _, err := a.validate(tx, SourcePeer, now)
	require.Error(t, err)
	aerr, ok := err.(*Error)
	require.True(t, ok)
	require.Equal(t, ErrTimestampInFuture, aerr.Kind)
}
