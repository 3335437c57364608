// Package storage declares the interfaces the acceptor and accounting engine
// consume from the (out-of-scope, per §1) Merkle-trie state store and
// transaction buffer, per §6 "Storage interface (consumed)", plus a concrete
// in-process implementation suitable for tests and single-node operation:
// github.com/cockroachdb/pebble backs the transaction buffer, fronted by a
// github.com/VictoriaMetrics/fastcache read-through cache for the hot
// account lookups the acceptor performs on every admission check.
package storage

import (
	"time"

	"github.com/casper-network/casper-node-go/common"
	"github.com/casper-network/casper-node-go/txn"
)

// QueryResult tags the result of a state query, per §6.
type QueryResult byte

const (
	QuerySuccess QueryResult = iota
	QueryValueNotFound
	QueryRootNotFound
	QueryFailure
)

// Account is the minimal account view the acceptor needs: its associated
// keys (with per-key weight) and its action threshold for ordinary deploys.
type Account struct {
	Hash            common.AccountHash
	MainPurse       common.PurseAddr
	AssociatedKeys  map[common.AccountHash]uint8 // account hash -> weight
	ActionThreshold uint8
}

// Entity is the post-migration equivalent of Account used by V1
// transactions; kept distinct per §6's read_entity/read_account split.
type Entity struct {
	Addr            common.AccountHash
	MainPurse       common.PurseAddr
	AssociatedKeys  map[common.AccountHash]uint8
	ActionThreshold uint8
}

// ContractInfo describes a stored contract or contract package referenced by
// a stored-contract payment/session item, for §4.C rule 10.
type ContractInfo struct {
	Exists            bool
	EntryPoints       map[string]bool
	IsPackage         bool
	DisabledVersions  map[uint32]bool
	HighestVersion    uint32
}

// BalanceResult is the result of a balance query, per §6.
type BalanceResult struct {
	Total     common.Motes
	Available common.Motes
	Holds     []txn.BalanceHold
}

// Store is the storage interface consumed by 4.C and 4.E, per §6.
type Store interface {
	ReadAccount(hash common.AccountHash) (*Account, bool)
	ReadEntity(addr common.AccountHash) (*Entity, bool)
	Query(stateRoot common.Hash, key common.Hash, path []string) (QueryResult, []byte)
	Balance(purse common.PurseAddr, handling txn.HoldHandling, now time.Time, interval time.Duration) (BalanceResult, error)
	PutTransaction(tx txn.Transaction) (isNew bool, err error)
	GetTransactionByHash(hash common.Hash) (txn.Transaction, bool)
	LookupContract(identifier ContractIdentifier) (ContractInfo, error)

	// Ledger operations consumed by 4.E.
	Debit(purse common.PurseAddr, amount common.Motes) error
	Credit(purse common.PurseAddr, amount common.Motes) error
	Burn(amount common.Motes) error
	PlaceHold(hold txn.BalanceHold) error
}

// ContractIdentifier names a stored contract or contract package, by hash or
// by name, optionally pinned to a version — §4.C rule 10.
type ContractIdentifier struct {
	ByName      bool
	Hash        common.Hash
	Name        string
	EntryPoint  string
	Version     *uint32 // pinned version, if any
	IsPackage   bool
}
