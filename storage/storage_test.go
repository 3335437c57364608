package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/casper-network/casper-node-go/common"
	"github.com/casper-network/casper-node-go/txn"
)

// storeFactory lets the behavior suite below run identically against every
// concrete Store this package offers.
type storeFactory struct {
	name string
	new  func(t *testing.T) Store
}

func storeFactories() []storeFactory {
	return []storeFactory{
		{name: "pebble", new: func(t *testing.T) Store {
			s, err := NewPebbleStore(t.TempDir(), 1<<20)
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		}},
		{name: "leveldb", new: func(t *testing.T) Store {
			s, err := NewLevelDBStore(t.TempDir(), 1<<20)
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		}},
	}
}

func seedPurse(t *testing.T, s Store, purse common.PurseAddr, total common.Motes) {
	switch impl := s.(type) {
	case *PebbleStore:
		impl.SeedPurse(purse, total)
	case *LevelDBStore:
		impl.SeedPurse(purse, total)
	default:
		t.Fatalf("unhandled store type %T", s)
	}
}

func TestStoreDebitCreditBurnAcrossBackends(t *testing.T) {
	for _, f := range storeFactories() {
		f := f
		t.Run(f.name, func(t *testing.T) {
			s := f.new(t)
			var purse common.PurseAddr
			purse[0] = 0xAA
			seedPurse(t, s, purse, common.NewMotes(1000))

			require.NoError(t, s.Debit(purse, common.NewMotes(300)))
			require.NoError(t, s.Credit(purse, common.NewMotes(50)))
			require.NoError(t, s.Burn(common.NewMotes(10)))

			res, err := s.Balance(purse, txn.HoldAccrued, time.Now(), time.Hour)
			require.NoError(t, err)
			require.Equal(t, 0, res.Total.Cmp(common.NewMotes(750)))

			err = s.Debit(purse, common.NewMotes(100000))
			require.Error(t, err)
		})
	}
}

func TestStorePutTransactionDedupAcrossBackends(t *testing.T) {
	for _, f := range storeFactories() {
		f := f
		t.Run(f.name, func(t *testing.T) {
			s := f.new(t)
			v1 := &txn.TransactionV1{}
			var h common.Hash
			h[0] = 0x01
			v1.SetHash(h)
			tx := txn.Transaction{Kind: txn.KindV1, V1: v1}

			isNew, err := s.PutTransaction(tx)
			require.NoError(t, err)
			require.True(t, isNew)

			isNew, err = s.PutTransaction(tx)
			require.NoError(t, err)
			require.False(t, isNew)

			_, found := s.GetTransactionByHash(tx.Hash())
			require.True(t, found)

			var missing common.Hash
			missing[0] = 0xFF
			_, found = s.GetTransactionByHash(missing)
			require.False(t, found)
		})
	}
}

func TestStoreLookupContractUnknownAcrossBackends(t *testing.T) {
	for _, f := range storeFactories() {
		f := f
		t.Run(f.name, func(t *testing.T) {
			s := f.new(t)
			info, err := s.LookupContract(ContractIdentifier{ByName: true, Name: "unknown"})
			require.NoError(t, err)
			require.False(t, info.Exists)
		})
	}
}
