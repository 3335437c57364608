package acceptor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/casper-network/casper-node-go/txn"
)

func TestPendingSetFIFOOrderAndDedup(t *testing.T) {
	s := NewPendingSet()
	now := time.Now()
	cfg := testConfig()
	tx1 := buildTransfer(t, cfg.NativeTransferMinimum, cfg.ChainName, now, time.Minute)
	tx2 := buildTransfer(t, cfg.NativeTransferMinimum, cfg.ChainName, now, time.Minute)

	lane := txn.Lane{ID: txn.MintLaneID}
	s.Add(tx1, lane)
	s.Add(tx2, lane)
	s.Add(tx1, lane) // duplicate: must not move or duplicate the entry

	require.Equal(t, 2, s.Len())
	txs := s.Transactions()
	require.Len(t, txs, 2)
	require.Equal(t, tx1.Hash(), txs[0].Hash())
	require.Equal(t, tx2.Hash(), txs[1].Hash())

	s.Remove(tx1.Hash())
	require.Equal(t, 1, s.Len())
	require.False(t, s.Contains(tx1.Hash()))
	require.True(t, s.Contains(tx2.Hash()))
}
