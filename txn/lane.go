package txn

// LaneID numbers a lane. MintLaneID and AuctionLaneID are reserved;
// remaining ids are WASM lanes ordered by ascending MaxTransactionGasLimit.
type LaneID uint8

const (
	MintLaneID    LaneID = 0
	AuctionLaneID LaneID = 1
	// FirstWasmLaneID is the lowest id a configured WASM lane may use.
	FirstWasmLaneID LaneID = 2
)

// Lane is a configured bucket of admission parameters, per §3.
type Lane struct {
	ID                           LaneID
	MaxSerializedLength          uint64
	MaxRuntimeArgsLength         uint64
	MaxTransactionGasLimit       uint64
	MaxTransactionCountPerBlock  uint32
}

// IsWasm reports whether l is an ordinary (non-mint, non-auction) WASM lane.
func (l Lane) IsWasm() bool {
	return l.ID >= FirstWasmLaneID
}

// LaneTable is the chainspec's configured set of lanes, kept sorted by
// ascending MaxTransactionGasLimit among the WASM lanes so classification can
// scan for "the smallest lane whose bounds satisfy the transaction".
type LaneTable struct {
	Mint    Lane
	Auction Lane
	Wasm    []Lane // sorted ascending by MaxTransactionGasLimit
}

// ByID returns the lane with the given id, if configured.
func (t LaneTable) ByID(id LaneID) (Lane, bool) {
	if id == MintLaneID {
		return t.Mint, true
	}
	if id == AuctionLaneID {
		return t.Auction, true
	}
	for _, l := range t.Wasm {
		if l.ID == id {
			return l, true
		}
	}
	return Lane{}, false
}
