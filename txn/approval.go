package txn

import (
	"github.com/casper-network/casper-node-go/common"
	casperCrypto "github.com/casper-network/casper-node-go/crypto"
)

// Approval is a signer/signature pair over a transaction hash, per §3.
type Approval struct {
	Signer    casperCrypto.PublicKey
	Signature casperCrypto.Signature
}

// Verify reports whether a is a valid approval of txnHash.
func (a Approval) Verify(txnHash common.Hash) (bool, error) {
	return casperCrypto.Verify(a.Signer, txnHash[:], a.Signature)
}
