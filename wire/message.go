package wire

import (
	"bufio"
	"encoding/json"
	"fmt"

	"github.com/casper-network/casper-node-go/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// Kind tags a wire message, per §6.
type Kind byte

const (
	KindHandshake Kind = iota
	KindPing
	KindPong
	KindPayload
)

// Handshake is the first message on each direction after the TLS handshake
// completes, per §6. The overlay compares only chain_name, and a mismatch
// terminates the connection; chainspec_hash and protocol_version are carried
// but not compared, and the overlay leaves them unset in its own handshake.
// Handshakes received after the first one on an established connection are
// logged as warnings, not errors.
type Handshake struct {
	ChainName       string       `json:"chain_name"`
	ChainspecHash   common.Hash  `json:"chainspec_hash"`
	PublicAddr      string       `json:"public_addr"`
	ProtocolVersion string       `json:"protocol_version"`
	IsSyncing       bool         `json:"is_syncing"`
}

// Ping carries a fresh 64-bit nonce, per §4.A/§6.
type Ping struct {
	Nonce uint64 `json:"nonce"`
}

// Pong echoes a Ping's nonce.
type Pong struct {
	Nonce uint64 `json:"nonce"`
}

// Envelope is the outer, self-describing (JSON) frame used for every message
// kind. A KindPayload envelope carries its body as opaque bytes in Payload
// (RLP-encoded by EncodePayload); the overlay passes them on undecoded in a
// MessageEvent.
type Envelope struct {
	Kind      Kind            `json:"kind"`
	Handshake *Handshake      `json:"handshake,omitempty"`
	Ping      *Ping           `json:"ping,omitempty"`
	Pong      *Pong           `json:"pong,omitempty"`
	Payload   []byte          `json:"payload,omitempty"` // RLP-encoded bulk body for KindPayload
}

// EncodeEnvelope serializes env as the self-describing control form.
func EncodeEnvelope(env Envelope) ([]byte, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("wire: encode envelope: %w", err)
	}
	return b, nil
}

// DecodeEnvelope parses the self-describing control form.
func DecodeEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, fmt.Errorf("wire: decode envelope: %w", err)
	}
	return env, nil
}

// EncodePayload RLP-encodes a bulk application payload (an accepted
// transaction, a gossiped address, a consensus message) — the "compact
// binary for bulk payloads" framing of §6.
func EncodePayload(v any) ([]byte, error) {
	b, err := rlp.EncodeToBytes(v)
	if err != nil {
		return nil, fmt.Errorf("wire: rlp encode payload: %w", err)
	}
	return b, nil
}

// DecodePayload RLP-decodes a bulk application payload into out.
func DecodePayload(b []byte, out any) error {
	if err := rlp.DecodeBytes(b, out); err != nil {
		return fmt.Errorf("wire: rlp decode payload: %w", err)
	}
	return nil
}

// WriteEnvelope frames and writes a control envelope.
func WriteEnvelope(w *FrameWriter, env Envelope) error {
	b, err := EncodeEnvelope(env)
	if err != nil {
		return err
	}
	return WriteFrame(w.w, b, w.maxLen)
}

// ReadEnvelope reads and parses one control envelope frame.
func ReadEnvelope(r *bufio.Reader, maxLen uint32) (Envelope, error) {
	b, err := ReadFrame(r, maxLen)
	if err != nil {
		return Envelope{}, err
	}
	return DecodeEnvelope(b)
}

// FrameWriter pairs an io.Writer with the configured max frame length.
type FrameWriter struct {
	w      writerFlusher
	maxLen uint32
}

type writerFlusher interface {
	Write(p []byte) (int, error)
}

// NewFrameWriter wraps w with maxLen as the per-connection frame writer.
func NewFrameWriter(w writerFlusher, maxLen uint32) *FrameWriter {
	return &FrameWriter{w: w, maxLen: maxLen}
}
