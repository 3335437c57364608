package acceptor

import (
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/casper-network/casper-node-go/common"
	"github.com/casper-network/casper-node-go/txn"
)

var metricPendingSize = metrics.NewRegisteredGauge("acceptor/pending/size", nil)

// PendingSet holds every accepted-but-not-yet-included transaction in strict
// first-in-first-out order. Block proposal reads Transactions() to pick the
// next block's candidates; block inclusion calls Remove for each hash once
// finalized. FIFO ordering is a deliberate simplicity/determinism choice, not
// a performance shortcut: every validator reaches the same candidate order
// from the same acceptance order, which a priority- or fee-ordered queue
// would not guarantee without also replicating the ordering rule itself.
type PendingSet struct {
	mu    sync.Mutex
	byTx  map[common.Hash]*pendingEntry
	queue []*pendingEntry
}

type pendingEntry struct {
	tx   txn.Transaction
	lane txn.Lane
}

// NewPendingSet constructs an empty PendingSet.
func NewPendingSet() *PendingSet {
	return &PendingSet{byTx: make(map[common.Hash]*pendingEntry)}
}

// Add inserts tx at the back of the queue. Re-adding an already-queued
// transaction is a no-op (its position is not disturbed), matching §4.C's
// duplicate-as-accepted rule: a duplicate does not jump the queue.
func (s *PendingSet) Add(tx txn.Transaction, lane txn.Lane) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := tx.Hash()
	if _, exists := s.byTx[hash]; exists {
		return
	}
	entry := &pendingEntry{tx: tx, lane: lane}
	s.byTx[hash] = entry
	s.queue = append(s.queue, entry)
	metricPendingSize.Update(int64(len(s.queue)))
	log.Trace("acceptor: queued pending transaction", "hash", hash, "lane", lane.ID)
}

// Contains reports whether hash is currently queued.
func (s *PendingSet) Contains(hash common.Hash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byTx[hash]
	return ok
}

// Remove evicts hash from the queue, called once its transaction has been
// included in a finalized block.
func (s *PendingSet) Remove(hash common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.byTx[hash]
	if !ok {
		return
	}
	delete(s.byTx, hash)
	for i, e := range s.queue {
		if e == entry {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			break
		}
	}
	metricPendingSize.Update(int64(len(s.queue)))
}

// Transactions returns every queued transaction in FIFO order.
func (s *PendingSet) Transactions() []txn.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]txn.Transaction, len(s.queue))
	for i, e := range s.queue {
		out[i] = e.tx
	}
	return out
}

// TransactionsInLane returns queued transactions restricted to one lane, the
// shape a per-lane block-inclusion budget (§3 MaxTransactionCountPerBlock)
// needs.
func (s *PendingSet) TransactionsInLane(id txn.LaneID) []txn.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []txn.Transaction
	for _, e := range s.queue {
		if e.lane.ID == id {
			out = append(out, e.tx)
		}
	}
	return out
}

// Len reports the number of queued transactions.
func (s *PendingSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
