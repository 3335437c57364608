// Package wire implements §6's external interfaces: length-prefixed framing,
// the Handshake/Ping/Pong/Payload message kinds, and their encodings. Bulk
// payloads use github.com/ethereum/go-ethereum/rlp ("compact binary" per §6);
// handshake/control frames use encoding/json ("self-describing form" — see
// SPEC_FULL.md §12 for why this is the one place JSON, not a pack library,
// is used).
package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// DefaultMaxFrameLength bounds a single frame, per §6's "configurable maximum".
const DefaultMaxFrameLength = 64 * 1024 * 1024

// WriteFrame writes a 32-bit big-endian length prefix followed by payload.
func WriteFrame(w io.Writer, payload []byte, maxLen uint32) error {
	if uint32(len(payload)) > maxLen {
		return fmt.Errorf("wire: frame of %d bytes exceeds max %d", len(payload), maxLen)
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("wire: write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("wire: write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame, rejecting anything over maxLen.
func ReadFrame(r *bufio.Reader, maxLen uint32) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("wire: read frame header: %w", err)
	}
	length := binary.BigEndian.Uint32(hdr[:])
	if length > maxLen {
		return nil, fmt.Errorf("wire: frame of %d bytes exceeds max %d", length, maxLen)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("wire: read frame payload: %w", err)
	}
	return buf, nil
}
