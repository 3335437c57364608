package txn

import (
	"encoding/binary"
	"time"

	"github.com/casper-network/casper-node-go/common"
	casperCrypto "github.com/casper-network/casper-node-go/crypto"
)

// ExecutableDeployItemKind tags the variant of a legacy Deploy's payment or
// session code, grounded on original_source/types/src/transaction/deploy.rs.
type ExecutableDeployItemKind byte

const (
	ItemModuleBytes ExecutableDeployItemKind = iota
	ItemStoredContractByHash
	ItemStoredContractByName
	ItemStoredVersionedContractByHash
	ItemStoredVersionedContractByName
	ItemTransfer
)

// ExecutableDeployItem is a legacy Deploy's payment or session code.
type ExecutableDeployItem struct {
	Kind ExecutableDeployItemKind

	ModuleBytes []byte

	ContractHash    common.Hash // StoredContractByHash
	Name            string      // StoredContractByName
	PackageHash     common.Hash // StoredVersionedContractByHash
	PackageName     string      // StoredVersionedContractByName
	EntryPoint      string
	Version         *uint32 // pinned package version, if any

	RuntimeArgs []byte // serialized runtime args bytesrepr blob

	// Amount is the parsed "amount" runtime argument, when the item declares
	// one (payment code, and transfer sessions). Kept alongside the raw
	// RuntimeArgs blob rather than requiring callers to re-parse bytesrepr.
	Amount common.Motes
}

// IsTransfer reports whether the item is a native transfer.
func (e ExecutableDeployItem) IsTransfer() bool { return e.Kind == ItemTransfer }

// IsStoredContractOrPackage reports whether the item references an on-chain
// contract or contract package by identifier (as opposed to carrying its own
// module bytes or being a native transfer).
func (e ExecutableDeployItem) IsStoredContractOrPackage() bool {
	switch e.Kind {
	case ItemStoredContractByHash, ItemStoredContractByName,
		ItemStoredVersionedContractByHash, ItemStoredVersionedContractByName:
		return true
	default:
		return false
	}
}

// DeployHeader is the header of a legacy Deploy, per §3.
type DeployHeader struct {
	InitiatorPublicKey casperCrypto.PublicKey
	Timestamp          time.Time
	TTL                time.Duration
	GasPriceTolerance  uint64
	BodyHash           common.Hash
	ChainName          string
}

// Deploy is the legacy transaction variant of the §3 sum type.
type Deploy struct {
	Header    DeployHeader
	Payment   ExecutableDeployItem
	Session   ExecutableDeployItem
	Approvals []Approval

	hash common.Hash
}

// serializeItem encodes one payment or session item. The body hash is the
// digest of the payment and session encodings concatenated into one buffer,
// matching original_source/types/src/transaction/deploy.rs's serialize_body,
// not a combination of two independent sub-hashes.
func serializeItem(item ExecutableDeployItem) []byte {
	buf := make([]byte, 0, 64+len(item.ModuleBytes)+len(item.RuntimeArgs))
	buf = append(buf, byte(item.Kind))
	buf = append(buf, item.ModuleBytes...)
	buf = append(buf, item.ContractHash[:]...)
	buf = append(buf, []byte(item.Name)...)
	buf = append(buf, item.PackageHash[:]...)
	buf = append(buf, []byte(item.PackageName)...)
	buf = append(buf, []byte(item.EntryPoint)...)
	if item.Version != nil {
		var v [4]byte
		binary.BigEndian.PutUint32(v[:], *item.Version)
		buf = append(buf, v[:]...)
	}
	buf = append(buf, item.RuntimeArgs...)
	return buf
}

// SerializeBody returns the flat payment||session encoding whose blake2b-256
// digest is the Deploy's BodyHash.
func (d *Deploy) SerializeBody() []byte {
	body := serializeItem(d.Payment)
	body = append(body, serializeItem(d.Session)...)
	return body
}

// SerializeHeader returns the header encoding whose blake2b-256 digest is the
// Deploy's hash.
func (d *Deploy) SerializeHeader() []byte {
	buf := make([]byte, 0, 96+len(d.Header.ChainName))
	buf = append(buf, d.Header.InitiatorPublicKey.Bytes...)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(d.Header.Timestamp.UnixMilli()))
	buf = append(buf, ts[:]...)
	var ttl [8]byte
	binary.BigEndian.PutUint64(ttl[:], uint64(d.Header.TTL.Milliseconds()))
	buf = append(buf, ttl[:]...)
	var gpt [8]byte
	binary.BigEndian.PutUint64(gpt[:], d.Header.GasPriceTolerance)
	buf = append(buf, gpt[:]...)
	buf = append(buf, d.Header.BodyHash[:]...)
	buf = append(buf, []byte(d.Header.ChainName)...)
	return buf
}

// ComputeBodyHash recomputes the hash of the serialized body.
func (d *Deploy) ComputeBodyHash() common.Hash {
	return common.HashData(d.SerializeBody())
}

// ComputeHash recomputes the hash of the serialized header.
func (d *Deploy) ComputeHash() common.Hash {
	return common.HashData(d.SerializeHeader())
}

// Hash returns the (cached) transaction hash. Callers must call SetHash, or
// use ComputeHash directly, before relying on a freshly constructed Deploy's
// Hash().
func (d *Deploy) Hash() common.Hash { return d.hash }

// SetHash caches h as the transaction's hash (set once, at decode time, after
// structural validation confirms h == ComputeHash()).
func (d *Deploy) SetHash(h common.Hash) { d.hash = h }

// IsTransfer reports whether the Deploy's session code is a native transfer.
func (d *Deploy) IsTransfer() bool { return d.Session.IsTransfer() }

// PricingMode derives the equivalent PricingMode for a legacy Deploy: legacy
// deploys are always priced as PaymentLimited using the motes attached to the
// payment code's "amount" runtime argument.
func (d *Deploy) PricingMode() PricingMode {
	return PricingMode{
		Kind:              PricingPaymentLimited,
		PaymentAmount:     d.Payment.Amount,
		StandardPayment:   d.Payment.Kind == ItemModuleBytes,
		GasPriceTolerance: d.Header.GasPriceTolerance,
	}
}
