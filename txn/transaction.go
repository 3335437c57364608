package txn

import (
	"time"

	"github.com/casper-network/casper-node-go/common"
	casperCrypto "github.com/casper-network/casper-node-go/crypto"
)

// TransactionKind tags the sum type's variant.
type TransactionKind byte

const (
	KindLegacy TransactionKind = iota
	KindV1
)

// Transaction is the sum type of §3: Legacy(Deploy) | V1(TransactionV1).
// Exactly one of Legacy/V1 is non-nil, selected by Kind.
type Transaction struct {
	Kind   TransactionKind
	Legacy *Deploy
	V1     *TransactionV1

	// serializedSize is the length of the wire frame this transaction was
	// decoded from, populated by the decoder and consulted by lane-size checks.
	serializedSize uint64
}

// SetSerializedSize records the wire-frame length of t, for lane-size checks.
func (t *Transaction) SetSerializedSize(n uint64) { t.serializedSize = n }

// Hash returns the transaction's cached hash, regardless of variant.
func (t Transaction) Hash() common.Hash {
	if t.Kind == KindLegacy {
		return t.Legacy.Hash()
	}
	return t.V1.Hash()
}

// BodyHash returns the hash the header claims for the body.
func (t Transaction) BodyHash() common.Hash {
	if t.Kind == KindLegacy {
		return t.Legacy.Header.BodyHash
	}
	return t.V1.Header.BodyHash
}

// ComputeBodyHash recomputes the body hash from the serialized body.
func (t Transaction) ComputeBodyHash() common.Hash {
	if t.Kind == KindLegacy {
		return t.Legacy.ComputeBodyHash()
	}
	return t.V1.ComputeBodyHash()
}

// ComputeHash recomputes the transaction hash from the serialized header.
func (t Transaction) ComputeHash() common.Hash {
	if t.Kind == KindLegacy {
		return t.Legacy.ComputeHash()
	}
	return t.V1.ComputeHash()
}

// InitiatorPublicKey returns the transaction's initiator key.
func (t Transaction) InitiatorPublicKey() casperCrypto.PublicKey {
	if t.Kind == KindLegacy {
		return t.Legacy.Header.InitiatorPublicKey
	}
	return t.V1.Header.InitiatorPublicKey
}

// ChainName returns the transaction's declared chain name.
func (t Transaction) ChainName() string {
	if t.Kind == KindLegacy {
		return t.Legacy.Header.ChainName
	}
	return t.V1.Header.ChainName
}

// Timestamp returns the transaction's declared creation time.
func (t Transaction) Timestamp() time.Time {
	if t.Kind == KindLegacy {
		return t.Legacy.Header.Timestamp
	}
	return t.V1.Header.Timestamp
}

// TTL returns the transaction's time-to-live.
func (t Transaction) TTL() time.Duration {
	if t.Kind == KindLegacy {
		return t.Legacy.Header.TTL
	}
	return t.V1.Header.TTL
}

// GasPriceTolerance returns the transaction's declared gas-price tolerance.
func (t Transaction) GasPriceTolerance() uint64 {
	if t.Kind == KindLegacy {
		return t.Legacy.Header.GasPriceTolerance
	}
	return t.V1.Header.PricingMode.GasPriceTolerance
}

// PricingMode returns the transaction's pricing mode, deriving it from the
// payment code for legacy Deploys.
func (t Transaction) PricingMode() PricingMode {
	if t.Kind == KindLegacy {
		return t.Legacy.PricingMode()
	}
	return t.V1.Header.PricingMode
}

// Approvals returns the transaction's approval set.
func (t Transaction) Approvals() []Approval {
	if t.Kind == KindLegacy {
		return t.Legacy.Approvals
	}
	return t.V1.Approvals
}

// IsTransfer reports whether this transaction is a native transfer.
func (t Transaction) IsTransfer() bool {
	if t.Kind == KindLegacy {
		return t.Legacy.IsTransfer()
	}
	return t.V1.IsTransfer()
}

// IsAuction reports whether this transaction is a staking/auction operation.
func (t Transaction) IsAuction() bool {
	if t.Kind == KindLegacy {
		return false
	}
	return t.V1.IsAuction()
}

// SerializedSize returns the wire size used for lane-size checks, as last
// recorded by SetSerializedSize; it is zero if SetSerializedSize was never
// called.
func (t Transaction) SerializedSize() uint64 { return t.serializedSize }

// SerializedArgsLength returns the byte length of the runtime arguments, used
// by the lane classifier's max_runtime_args_length bound.
func (t Transaction) SerializedArgsLength() uint64 {
	if t.Kind == KindLegacy {
		return uint64(len(t.Legacy.Session.RuntimeArgs))
	}
	return uint64(t.V1.Body.SerializedArgsLength())
}
