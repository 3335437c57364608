package crypto

import "golang.org/x/crypto/blake2b"

// Blake2b256 returns the blake2b-256 digest of data — the hash function the
// transaction and body hashes of §3 use.
func Blake2b256(data []byte) [32]byte {
	return blake2b.Sum256(data)
}
