package txn

import (
	"encoding/binary"
	"sort"
	"time"

	"github.com/casper-network/casper-node-go/common"
	casperCrypto "github.com/casper-network/casper-node-go/crypto"
)

// FieldIndex numbers a recognized V1 transaction body field. §4.C rule 12
// ("field whitelist") rejects any field index outside this set.
type FieldIndex uint16

const (
	FieldArgs FieldIndex = iota
	FieldTarget
	FieldEntryPoint
	FieldScheduling
	FieldTransferAmount
	FieldTransferTarget
	FieldTransferIDOptional
	FieldCategory
)

// RecognizedFields is the V1 field whitelist of §4.C rule 12.
var RecognizedFields = map[FieldIndex]bool{
	FieldArgs:               true,
	FieldTarget:             true,
	FieldEntryPoint:         true,
	FieldScheduling:         true,
	FieldTransferAmount:     true,
	FieldTransferTarget:     true,
	FieldTransferIDOptional: true,
	FieldCategory:           true,
}

// Category classifies a V1 transaction's body before lane assignment.
type Category byte

const (
	CategoryMint Category = iota
	CategoryAuction
	CategoryWasm
)

// TransactionV1Header is the header of a V1 transaction, per §3.
type TransactionV1Header struct {
	InitiatorPublicKey casperCrypto.PublicKey
	ChainName          string
	Timestamp          time.Time
	TTL                time.Duration
	PricingMode        PricingMode
	BodyHash           common.Hash
}

// TransactionV1Body holds the fields map described in §3 (fields map for V1).
type TransactionV1Body struct {
	Category Category
	Fields   map[FieldIndex][]byte // raw bytesrepr-encoded field values
}

// UnrecognizedFields returns any field indices in b.Fields that are not in
// RecognizedFields, for the §4.C rule 12 whitelist check.
func (b TransactionV1Body) UnrecognizedFields() []FieldIndex {
	var bad []FieldIndex
	for idx := range b.Fields {
		if !RecognizedFields[idx] {
			bad = append(bad, idx)
		}
	}
	sort.Slice(bad, func(i, j int) bool { return bad[i] < bad[j] })
	return bad
}

// SerializedArgsLength returns the byte length of the runtime-args field, used
// by the lane classifier's max_runtime_args_length bound.
func (b TransactionV1Body) SerializedArgsLength() int {
	return len(b.Fields[FieldArgs])
}

// TransferAmount parses the transfer "amount" field, if present. The second
// return reports whether the field exists and parsed.
func (b TransactionV1Body) TransferAmount() (common.Motes, bool) {
	raw, ok := b.Fields[FieldTransferAmount]
	if !ok {
		return common.Motes{}, false
	}
	var m common.Motes
	if err := m.UnmarshalText(raw); err != nil {
		return common.Motes{}, false
	}
	return m, true
}

// TransferTarget returns the transfer "target" field, if present.
func (b TransactionV1Body) TransferTarget() (common.Hash, bool) {
	raw, ok := b.Fields[FieldTransferTarget]
	if !ok || len(raw) != common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(raw), true
}

// TransactionV1 is the modern transaction variant of the §3 sum type.
type TransactionV1 struct {
	Header    TransactionV1Header
	Body      TransactionV1Body
	Approvals []Approval

	hash common.Hash
}

// SerializeBody encodes the body deterministically (fields sorted by index)
// so hashing is stable regardless of map iteration order.
func (t *TransactionV1) SerializeBody() []byte {
	keys := make([]FieldIndex, 0, len(t.Body.Fields))
	for k := range t.Body.Fields {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	buf := []byte{byte(t.Body.Category)}
	for _, k := range keys {
		var idxBuf [2]byte
		binary.BigEndian.PutUint16(idxBuf[:], uint16(k))
		buf = append(buf, idxBuf[:]...)
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(t.Body.Fields[k])))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, t.Body.Fields[k]...)
	}
	return buf
}

// SerializeHeader encodes the header for hashing.
func (t *TransactionV1) SerializeHeader() []byte {
	buf := make([]byte, 0, 96+len(t.Header.ChainName))
	buf = append(buf, t.Header.InitiatorPublicKey.Bytes...)
	buf = append(buf, []byte(t.Header.ChainName)...)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(t.Header.Timestamp.UnixMilli()))
	buf = append(buf, ts[:]...)
	var ttl [8]byte
	binary.BigEndian.PutUint64(ttl[:], uint64(t.Header.TTL.Milliseconds()))
	buf = append(buf, ttl[:]...)
	buf = append(buf, t.Header.BodyHash[:]...)
	return buf
}

func (t *TransactionV1) ComputeBodyHash() common.Hash { return common.HashData(t.SerializeBody()) }
func (t *TransactionV1) ComputeHash() common.Hash     { return common.HashData(t.SerializeHeader()) }
func (t *TransactionV1) Hash() common.Hash            { return t.hash }
func (t *TransactionV1) SetHash(h common.Hash)        { t.hash = h }
func (t *TransactionV1) IsTransfer() bool             { return t.Body.Category == CategoryMint }
func (t *TransactionV1) IsAuction() bool              { return t.Body.Category == CategoryAuction }
