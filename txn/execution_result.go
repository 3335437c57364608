package txn

import (
	"github.com/casper-network/casper-node-go/common"
	casperCrypto "github.com/casper-network/casper-node-go/crypto"
)

// Transfer is one native-token movement effected by execution.
type Transfer struct {
	From   common.PurseAddr
	To     common.PurseAddr
	Amount common.Motes
}

// ExecutionResult is the outcome of executing an admitted transaction, per
// §3: {initiator, error_message?, price, limit, consumed, cost, refund,
// transfers[], effects, size_estimate}.
//
// Per original_source/types/src/execution/execution_result_v2.rs, SizeEstimate
// is carried purely for storage/gossip accounting and plays no part in
// consensus.
type ExecutionResult struct {
	Initiator     casperCrypto.PublicKey
	ErrorMessage  string // empty on success
	Price         uint64
	Limit         uint64
	Consumed      uint64
	Cost          common.Motes
	Refund        common.Motes
	Transfers     []Transfer
	Effects       [][]byte // opaque effect records; the trie/WASM layers are out of scope
	SizeEstimate  uint64
}

// Failed reports whether execution produced an error.
func (r ExecutionResult) Failed() bool { return r.ErrorMessage != "" }

// CostUnderFixedPricing is the §8 testable property: cost = limit * price.
func CostUnderFixedPricing(limit, price uint64) common.Motes {
	return common.NewMotesFromUint64(limit).Mul(price)
}
