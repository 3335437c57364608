// Package crypto verifies transaction approval signatures under the two key
// algorithms Casper-family chains support: Ed25519 (stdlib crypto/ed25519) and
// secp256k1 (github.com/decred/dcrd/dcrec/secp256k1/v4, already in the
// teacher's go.mod and used there for account/address cryptography).
package crypto

import (
	stded25519 "crypto/ed25519"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Algorithm tags a public key / signature pair.
type Algorithm byte

const (
	AlgorithmEd25519   Algorithm = 1
	AlgorithmSecp256k1 Algorithm = 2
)

// PublicKey is a tagged public key, matching how Casper-family chains encode
// account keys as algorithm-tag || raw bytes.
type PublicKey struct {
	Algorithm Algorithm
	Bytes     []byte
}

// Signature is a tagged signature.
type Signature struct {
	Algorithm Algorithm
	Bytes     []byte
}

// Verify reports whether sig is a valid signature by pk over msg.
func Verify(pk PublicKey, msg []byte, sig Signature) (bool, error) {
	if pk.Algorithm != sig.Algorithm {
		return false, fmt.Errorf("crypto: key/signature algorithm mismatch")
	}
	switch pk.Algorithm {
	case AlgorithmEd25519:
		if len(pk.Bytes) != stded25519.PublicKeySize {
			return false, fmt.Errorf("crypto: bad ed25519 public key length %d", len(pk.Bytes))
		}
		return stded25519.Verify(stded25519.PublicKey(pk.Bytes), msg, sig.Bytes), nil
	case AlgorithmSecp256k1:
		return verifySecp256k1(pk.Bytes, msg, sig.Bytes)
	default:
		return false, fmt.Errorf("crypto: unknown key algorithm %d", pk.Algorithm)
	}
}

func verifySecp256k1(pubkey, msg, sig []byte) (bool, error) {
	pk, err := secp256k1.ParsePubKey(pubkey)
	if err != nil {
		return false, fmt.Errorf("crypto: parse secp256k1 public key: %w", err)
	}
	digest := Blake2b256(msg)
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		// Casper-family chains also accept the compact 64-byte r||s form.
		if len(sig) != 64 {
			return false, fmt.Errorf("crypto: parse secp256k1 signature: %w", err)
		}
		var r, s secp256k1.ModNScalar
		r.SetByteSlice(sig[:32])
		s.SetByteSlice(sig[32:])
		parsed = ecdsa.NewSignature(&r, &s)
	}
	return parsed.Verify(digest[:], pk), nil
}
