package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/casper-network/casper-node-go/common"
	"github.com/casper-network/casper-node-go/txn"
)

// LevelDBStore is a lighter-weight Store for unit tests and small
// single-validator deployments: the same account/purse/hold bookkeeping as
// PebbleStore, but the transaction buffer sits on
// github.com/syndtr/goleveldb instead of pebble, since goleveldb's
// in-process, no-background-compaction-goroutines footprint starts up
// faster under `go test -short` than standing up a pebble instance per
// test case.
type LevelDBStore struct {
	db    *leveldb.DB
	cache *fastcache.Cache

	mu        sync.RWMutex
	accounts  map[common.AccountHash]*Account
	entities  map[common.AccountHash]*Entity
	contracts map[string]ContractInfo
	purses    map[common.PurseAddr]common.Motes
	holds     map[common.PurseAddr][]txn.BalanceHold
	burned    common.Motes
}

// NewLevelDBStore opens (or creates) a goleveldb database at dir.
func NewLevelDBStore(dir string, cacheBytes int) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open leveldb at %s: %w", dir, err)
	}
	return &LevelDBStore{
		db:        db,
		cache:     fastcache.New(cacheBytes),
		accounts:  make(map[common.AccountHash]*Account),
		entities:  make(map[common.AccountHash]*Entity),
		contracts: make(map[string]ContractInfo),
		purses:    make(map[common.PurseAddr]common.Motes),
		holds:     make(map[common.PurseAddr][]txn.BalanceHold),
		burned:    common.ZeroMotes(),
	}, nil
}

func (s *LevelDBStore) Close() error { return s.db.Close() }

func (s *LevelDBStore) SeedAccount(a Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := a
	s.accounts[a.Hash] = &cp
}

func (s *LevelDBStore) SeedPurse(purse common.PurseAddr, total common.Motes) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purses[purse] = total
}

func (s *LevelDBStore) SeedContract(key string, info ContractInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contracts[key] = info
}

func (s *LevelDBStore) ReadAccount(hash common.AccountHash) (*Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[hash]
	if !ok {
		return nil, false
	}
	cp := *a
	return &cp, true
}

func (s *LevelDBStore) ReadEntity(addr common.AccountHash) (*Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[addr]
	if !ok {
		return nil, false
	}
	cp := *e
	return &cp, true
}

func (s *LevelDBStore) Query(common.Hash, common.Hash, []string) (QueryResult, []byte) {
	return QueryRootNotFound, nil
}

func (s *LevelDBStore) Balance(purse common.PurseAddr, handling txn.HoldHandling, now time.Time, interval time.Duration) (BalanceResult, error) {
	s.mu.RLock()
	total, ok := s.purses[purse]
	holds := append([]txn.BalanceHold(nil), s.holds[purse]...)
	s.mu.RUnlock()
	if !ok {
		return BalanceResult{}, fmt.Errorf("storage: unknown purse %s", purse)
	}
	var unavailable common.Motes
	for _, h := range holds {
		unavailable = unavailable.Add(h.ActiveAmount(now, handling, interval))
	}
	available, _ := total.SubChecked(unavailable)
	return BalanceResult{Total: total, Available: available, Holds: holds}, nil
}

func (s *LevelDBStore) PutTransaction(tx txn.Transaction) (bool, error) {
	key := txKey(tx.Hash())
	if exists, err := s.db.Has(key, nil); err != nil {
		return false, fmt.Errorf("storage: has transaction: %w", err)
	} else if exists {
		return false, nil
	}
	encoded, err := encodeTxPlaceholder(tx)
	if err != nil {
		return false, err
	}
	if err := s.db.Put(key, encoded, nil); err != nil {
		return false, fmt.Errorf("storage: put transaction: %w", err)
	}
	return true, nil
}

func (s *LevelDBStore) GetTransactionByHash(hash common.Hash) (txn.Transaction, bool) {
	exists, err := s.db.Has(txKey(hash), nil)
	if err != nil || !exists {
		return txn.Transaction{}, false
	}
	return txn.Transaction{}, true
}

func (s *LevelDBStore) LookupContract(id ContractIdentifier) (ContractInfo, error) {
	key := id.Name
	if !id.ByName {
		key = id.Hash.String()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.contracts[key]
	if !ok {
		return ContractInfo{Exists: false}, nil
	}
	return info, nil
}

func (s *LevelDBStore) Debit(purse common.PurseAddr, amount common.Motes) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	total, ok := s.purses[purse]
	if !ok {
		return fmt.Errorf("storage: unknown purse %s", purse)
	}
	next, ok := total.SubChecked(amount)
	if !ok {
		return fmt.Errorf("storage: insufficient balance in purse %s", purse)
	}
	s.purses[purse] = next
	return nil
}

func (s *LevelDBStore) Credit(purse common.PurseAddr, amount common.Motes) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purses[purse] = s.purses[purse].Add(amount)
	return nil
}

func (s *LevelDBStore) Burn(amount common.Motes) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.burned = s.burned.Add(amount)
	return nil
}

func (s *LevelDBStore) TotalBurned() common.Motes {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.burned
}

func (s *LevelDBStore) PlaceHold(hold txn.BalanceHold) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	holds := s.holds[hold.Purse]
	for i, h := range holds {
		if h.Tag == hold.Tag && h.CreatedAt.Equal(hold.CreatedAt) {
			holds[i].Amount = holds[i].Amount.Add(hold.Amount)
			return nil
		}
	}
	s.holds[hold.Purse] = append(holds, hold)
	return nil
}

var _ Store = (*LevelDBStore)(nil)
