// Copyright 2014 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package common holds the small value types shared across the node: content
// hashes, account identifiers and node identifiers. It adapts go-ethereum's
// common.Hash (32-byte digest with hex codec) to a blake2b-based chain whose
// hashes, accounts and peer fingerprints are all 32 bytes, rather than
// reimplementing the same fixed-array-plus-hex-codec type from scratch.
package common

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// HashLength is the length in bytes of a content digest.
const HashLength = 32

// Hash is a blake2b-256 content digest: transaction hashes, body hashes,
// account hashes and block hashes are all represented this way.
type Hash [HashLength]byte

// ZeroHash is the all-zero digest, used as a sentinel "absent" value.
var ZeroHash Hash

// HashData returns the blake2b-256 digest of data.
func HashData(data []byte) Hash {
	return blake2b.Sum256(data)
}

// Bytes returns a copy of h as a byte slice.
func (h Hash) Bytes() []byte { return h[:] }

// String implements fmt.Stringer, returning the "0x"-prefixed hex form.
func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// IsZero reports whether h is the all-zero digest.
func (h Hash) IsZero() bool { return h == ZeroHash }

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	s := string(text)
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("common: invalid hash hex: %w", err)
	}
	if len(b) != HashLength {
		return fmt.Errorf("common: hash must be %d bytes, got %d", HashLength, len(b))
	}
	copy(h[:], b)
	return nil
}

// BytesToHash right-aligns b into a Hash, truncating from the left if b is
// longer than HashLength, like go-ethereum's common.BytesToHash.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

// AccountHash identifies an on-chain account; it shares Hash's shape because
// Casper account hashes, like transaction hashes, are 32-byte blake2b digests.
type AccountHash = Hash

// PurseAddr identifies a balance-holding purse.
type PurseAddr = Hash
