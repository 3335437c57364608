package acceptor

import (
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/casper-network/casper-node-go/common"
	"github.com/casper-network/casper-node-go/pricing"
	"github.com/casper-network/casper-node-go/storage"
	"github.com/casper-network/casper-node-go/txn"
)

var (
	metricAccepted = metrics.NewRegisteredMeter("acceptor/accepted", nil)
	metricRejected = metrics.NewRegisteredMeter("acceptor/rejected", nil)
	metricDuplicate = metrics.NewRegisteredMeter("acceptor/duplicate", nil)
)

// Source distinguishes a client-submitted transaction from one relayed by a
// peer, per §4.C: several checks (header timing, account/associated-keys)
// only apply to client submissions.
type Source byte

const (
	SourceClient Source = iota
	SourcePeer
)

// Config bundles the chainspec-derived parameters the validation chain
// consults, per §4.C / §6.
type Config struct {
	ChainName                string
	MinGasPrice              uint64
	MaxGasPrice              uint64
	MaxFutureTimestampLeeway time.Duration
	MaxTTL                   time.Duration
	MaxApprovals             int
	NativeTransferMinimum    common.Motes
	MintTransferCost         pricing.MintTransferCost
	Lanes                    txn.LaneTable

	// BlockGasLimit is §6's block_gas_limit: no single transaction's gas
	// limit may exceed it, independent of its lane's own per-transaction cap.
	BlockGasLimit uint64

	// BaselineMotes is the chainspec's baseline motes required both of a
	// legacy non-transfer deploy's payment amount (step 8) and of a client
	// submission's initiator account balance (step 11).
	BaselineMotes common.Motes

	// BalanceHoldHandling and BalanceHoldInterval parameterize the store
	// Balance lookup the baseline-balance check performs, matching the
	// fee engine's own accrued/amortized gas-hold accounting.
	BalanceHoldHandling txn.HoldHandling
	BalanceHoldInterval time.Duration
}

// AcceptedEvent is posted once per newly accepted transaction, per §6's
// Announcements, mirroring the teacher's NewTxsEvent/NewPreconfTxEvent
// pattern in core/events.go.
type AcceptedEvent struct {
	Transaction txn.Transaction
	Lane        txn.Lane
	GasLimit    uint64
	Cost        common.Motes
	Source      Source
}

// InvalidEvent is posted once per rejected transaction.
type InvalidEvent struct {
	Hash   common.Hash
	Err    *Error
	Source Source
}

// Acceptor runs the ordered validation chain of §4.C and announces the
// outcome via event.Feed.
type Acceptor struct {
	cfg     Config
	store   storage.Store
	pending *PendingSet

	acceptedFeed event.Feed
	invalidFeed  event.Feed

	currentGasPrice uint64
}

// New constructs an Acceptor. currentGasPrice is the already-clamped
// per-era gas price the pricing classifier should use.
func New(cfg Config, store storage.Store, currentGasPrice uint64) *Acceptor {
	return &Acceptor{
		cfg:             cfg,
		store:           store,
		pending:         NewPendingSet(),
		currentGasPrice: cfg.clampPrice(currentGasPrice),
	}
}

// Pending returns the acceptor's FIFO queue of accepted-but-not-yet-included
// transactions, for block proposal / inclusion to consume.
func (a *Acceptor) Pending() *PendingSet { return a.pending }

func (c Config) clampPrice(price uint64) uint64 {
	if price < c.MinGasPrice {
		return c.MinGasPrice
	}
	if price > c.MaxGasPrice {
		return c.MaxGasPrice
	}
	return price
}

// SubscribeAccepted and SubscribeInvalid expose the acceptor's announcements.
func (a *Acceptor) SubscribeAccepted(ch chan<- AcceptedEvent) event.Subscription {
	return a.acceptedFeed.Subscribe(ch)
}

func (a *Acceptor) SubscribeInvalid(ch chan<- InvalidEvent) event.Subscription {
	return a.invalidFeed.Subscribe(ch)
}

// Accept runs tx through the full ordered validation chain and, on success,
// stores it and announces AcceptedEvent. A transaction already present in
// the store is treated as accepted (duplicate-as-accepted, per §4.C) and
// re-announced without re-validating.
func (a *Acceptor) Accept(tx txn.Transaction, source Source, now time.Time) error {
	hash := tx.Hash()

	if _, ok := a.store.GetTransactionByHash(hash); ok {
		// Already stored: re-announce without re-validating, per §4.C's
		// duplicate-as-accepted rule. Classification is derived from the
		// caller's own copy of tx (identical by hash to whatever is stored),
		// since the store only guarantees presence, not a full decode.
		metricDuplicate.Mark(1)
		log.Debug("acceptor: duplicate transaction treated as accepted", "hash", hash)
		lane, limit, cost, _ := pricing.Classify(tx, a.cfg.Lanes, a.cfg.MintTransferCost, a.currentGasPrice)
		a.pending.Add(tx, lane)
		a.acceptedFeed.Send(AcceptedEvent{Transaction: tx, Lane: lane, GasLimit: limit, Cost: cost, Source: source})
		return nil
	}

	lane, limit, cost, err := a.validate(tx, source, now)
	if err != nil {
		metricRejected.Mark(1)
		aerr, _ := err.(*Error)
		a.invalidFeed.Send(InvalidEvent{Hash: hash, Err: aerr, Source: source})
		log.Debug("acceptor: rejected transaction", "hash", hash, "err", err)
		return err
	}

	if _, err := a.store.PutTransaction(tx); err != nil {
		return newErr(ErrStructural, "store: "+err.Error())
	}

	metricAccepted.Mark(1)
	a.pending.Add(tx, lane)
	a.acceptedFeed.Send(AcceptedEvent{Transaction: tx, Lane: lane, GasLimit: limit, Cost: cost, Source: source})
	return nil
}

// validate runs the twelve-step ordered chain of §4.C and, on success,
// returns the transaction's classified lane, gas limit and cost.
func (a *Acceptor) validate(tx txn.Transaction, source Source, now time.Time) (txn.Lane, uint64, common.Motes, error) {
	var zero txn.Lane

	// 1. Structural: hash matches the recomputed header digest, body hash
	// matches the recomputed body digest, and at least one approval is
	// present.
	if tx.Hash() != tx.ComputeHash() {
		return zero, 0, common.Motes{}, newErr(ErrStructural, "hash does not match recomputed header digest")
	}
	if tx.BodyHash() != tx.ComputeBodyHash() {
		return zero, 0, common.Motes{}, newErr(ErrStructural, "body hash does not match recomputed body digest")
	}
	if len(tx.Approvals()) == 0 {
		return zero, 0, common.Motes{}, newErr(ErrStructural, "no approvals present")
	}
	for _, appr := range tx.Approvals() {
		ok, err := appr.Verify(tx.Hash())
		if err != nil || !ok {
			return zero, 0, common.Motes{}, newErr(ErrStructural, "invalid approval signature")
		}
	}

	// 2. Chain name.
	if tx.ChainName() != a.cfg.ChainName {
		return zero, 0, common.Motes{}, newErr(ErrWrongChain, tx.ChainName())
	}

	// 3. Gas-price tolerance.
	if !tx.PricingMode().MeetsGasPriceTolerance(a.cfg.MinGasPrice) {
		return zero, 0, common.Motes{}, newErr(ErrGasPriceToleranceTooLow, "")
	}

	// 4. Header timing, with a peer exemption: a transaction relayed by a
	// peer may already be expired (it could be part of a block currently
	// being synced) and is not rejected on TTL grounds — only the future-
	// timestamp check still applies, per the peer-sent-expired-transaction
	// scenario of §8.
	if tx.Timestamp().After(now.Add(a.cfg.MaxFutureTimestampLeeway)) {
		return zero, 0, common.Motes{}, newErr(ErrTimestampInFuture, "")
	}
	if tx.TTL() > a.cfg.MaxTTL {
		return zero, 0, common.Motes{}, newErr(ErrExpired, "ttl exceeds maximum")
	}
	if source == SourceClient && now.After(tx.Timestamp().Add(tx.TTL())) {
		return zero, 0, common.Motes{}, newErr(ErrExpired, "")
	}

	// 5. Approvals cardinality.
	if len(tx.Approvals()) > a.cfg.MaxApprovals {
		return zero, 0, common.Motes{}, newErr(ErrExcessiveApprovals, "")
	}

	// 6 & 7. Lane classification and gas limit.
	lane, limit, cost, err := pricing.Classify(tx, a.cfg.Lanes, a.cfg.MintTransferCost, a.currentGasPrice)
	if err != nil {
		return zero, 0, common.Motes{}, newErr(ErrNoLaneMatch, err.Error())
	}
	if limit == 0 {
		return zero, 0, common.Motes{}, newErr(ErrGasLimitTooLow, "")
	}
	if a.cfg.BlockGasLimit > 0 && limit > a.cfg.BlockGasLimit {
		return zero, 0, common.Motes{}, newErr(ErrGasLimitExceedsBlock, "")
	}

	// 8. Payment-mode validity: Prepaid transactions need a resolvable
	// receipt; that resolution lives outside the acceptor (it is a storage
	// lookup the caller performs before invoking Accept for a prepaid tx),
	// so here we only reject the combinations that can never be valid. Legacy
	// non-transfer deploys additionally must attach at least the chainspec's
	// baseline motes as payment.
	mode := tx.PricingMode()
	if mode.Kind == txn.PricingPrepaid && mode.ReceiptHash.IsZero() {
		return zero, 0, common.Motes{}, newErr(ErrInvalidPaymentMode, "prepaid transaction missing receipt hash")
	}
	if tx.Kind == txn.KindLegacy && !tx.Legacy.IsTransfer() {
		if tx.Legacy.Payment.Amount.Cmp(a.cfg.BaselineMotes) < 0 {
			return zero, 0, common.Motes{}, newErr(ErrInvalidPaymentMode, "payment amount below baseline motes")
		}
	}

	// 9. Native transfer minimum.
	if tx.IsTransfer() {
		amount, ok := transferAmount(tx)
		if !ok || amount.Cmp(a.cfg.NativeTransferMinimum) < 0 {
			return zero, 0, common.Motes{}, newErr(ErrTransferBelowMinimum, "")
		}
	}

	// 10. Stored-contract / package existence.
	if id, ok := storedContractIdentifier(tx); ok {
		info, err := a.store.LookupContract(id)
		if err != nil || !info.Exists {
			return zero, 0, common.Motes{}, newErr(ErrMissingContract, id.Name)
		}
	}

	// 11. Account checks, client-only: an associated-keys / action-threshold
	// check against the initiator's on-chain account is skipped for
	// peer-relayed transactions — the originating node already performed it,
	// and a validator whose own account view briefly lags consensus should
	// not reject an otherwise-valid relayed transaction.
	if source == SourceClient {
		if err := a.checkAssociatedKeys(tx, now); err != nil {
			return zero, 0, common.Motes{}, err
		}
	}

	// 12. V1 field whitelist.
	if tx.Kind == txn.KindV1 {
		if bad := tx.V1.Body.UnrecognizedFields(); len(bad) > 0 {
			return zero, 0, common.Motes{}, newErr(ErrUnrecognizedField, "")
		}
	}

	return lane, limit, cost, nil
}

// checkAssociatedKeys verifies the initiator's account permits this
// transaction's signers at sufficient combined weight, and that its main
// purse holds at least the chainspec's baseline motes. Per the ordering
// documented from transaction_acceptor/tests.rs (SPEC_FULL.md §13), signature
// verification (step 1, structural) has already happened by this point, so a
// malformed signature is reported as a structural error rather than surfacing
// here as a permission error.
func (a *Acceptor) checkAssociatedKeys(tx txn.Transaction, now time.Time) error {
	initiatorKey := tx.InitiatorPublicKey()
	initiatorHash := common.HashData(append([]byte{byte(initiatorKey.Algorithm)}, initiatorKey.Bytes...))
	account, ok := a.store.ReadAccount(initiatorHash)
	if !ok {
		// Brand-new accounts with no stored associated-keys record are
		// permitted to self-authorize with their own key at full weight.
		return nil
	}
	var totalWeight int
	for _, appr := range tx.Approvals() {
		keyHash := common.HashData(append([]byte{byte(appr.Signer.Algorithm)}, appr.Signer.Bytes...))
		totalWeight += int(account.AssociatedKeys[keyHash])
	}
	if totalWeight < int(account.ActionThreshold) {
		return newErr(ErrStructural, "associated keys do not meet action threshold")
	}

	balance, err := a.store.Balance(account.MainPurse, a.cfg.BalanceHoldHandling, now, a.cfg.BalanceHoldInterval)
	if err != nil {
		return newErr(ErrStructural, "balance lookup: "+err.Error())
	}
	if balance.Available.Cmp(a.cfg.BaselineMotes) < 0 {
		return newErr(ErrInsufficientBalance, "")
	}
	return nil
}

func transferAmount(tx txn.Transaction) (common.Motes, bool) {
	if tx.Kind == txn.KindLegacy {
		return tx.Legacy.Session.Amount, true
	}
	return tx.V1.Body.TransferAmount()
}

func storedContractIdentifier(tx txn.Transaction) (storage.ContractIdentifier, bool) {
	if tx.Kind != txn.KindLegacy || !tx.Legacy.Session.IsStoredContractOrPackage() {
		return storage.ContractIdentifier{}, false
	}
	item := tx.Legacy.Session
	switch item.Kind {
	case txn.ItemStoredContractByHash:
		return storage.ContractIdentifier{Hash: item.ContractHash, EntryPoint: item.EntryPoint}, true
	case txn.ItemStoredContractByName:
		return storage.ContractIdentifier{ByName: true, Name: item.Name, EntryPoint: item.EntryPoint}, true
	case txn.ItemStoredVersionedContractByHash:
		return storage.ContractIdentifier{Hash: item.PackageHash, EntryPoint: item.EntryPoint, Version: item.Version, IsPackage: true}, true
	case txn.ItemStoredVersionedContractByName:
		return storage.ContractIdentifier{ByName: true, Name: item.PackageName, EntryPoint: item.EntryPoint, Version: item.Version, IsPackage: true}, true
	default:
		return storage.ContractIdentifier{}, false
	}
}
