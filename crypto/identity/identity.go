// Package identity derives a node's stable NodeId from its self-signed TLS
// identity certificate, and generates/loads that certificate. crypto/tls and
// crypto/x509 are the one place this repository reaches for stdlib networking
// crypto instead of a pack dependency — see SPEC_FULL.md §12 for why: no
// example in the retrieval pack offers a "mutually authenticated self-signed
// TLS overlay" library, and this is exactly the layer Go's standard library
// is meant to own (go-ethereum's own p2p/RLPx transport is built the same way).
package identity

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"

	nodecommon "github.com/casper-network/casper-node-go/common"
	"golang.org/x/crypto/blake2b"
)

// NodeId is the stable identifier of a node: the blake2b-256 fingerprint of
// its self-signed identity certificate's public key. Equality and ordering
// follow the fingerprint, per §3.
type NodeId = nodecommon.Hash

// Identity bundles the long-lived TLS certificate/key pair a node presents on
// every outgoing and incoming connection, plus the derived NodeId.
type Identity struct {
	Cert tls.Certificate
	ID   NodeId
}

// Generate creates a fresh self-signed ECDSA P-256 identity certificate valid
// for validFor, the way a node does on first start (absent a persisted one).
func Generate(validFor time.Duration) (*Identity, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("identity: generate serial: %w", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "casper-node"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(validFor),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("identity: create certificate: %w", err)
	}
	cert := tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
	id, err := FingerprintDER(der)
	if err != nil {
		return nil, err
	}
	return &Identity{Cert: cert, ID: id}, nil
}

// FingerprintDER computes the NodeId fingerprint of a DER-encoded certificate:
// the blake2b-256 hash of the certificate's raw public key bytes.
func FingerprintDER(der []byte) (NodeId, error) {
	parsed, err := x509.ParseCertificate(der)
	if err != nil {
		return NodeId{}, fmt.Errorf("identity: parse certificate: %w", err)
	}
	return blake2b.Sum256(parsed.RawSubjectPublicKeyInfo), nil
}

// FingerprintConn returns the NodeId of the single leaf certificate the peer
// presented on a completed TLS handshake.
func FingerprintConn(state tls.ConnectionState) (NodeId, error) {
	if len(state.PeerCertificates) == 0 {
		return NodeId{}, fmt.Errorf("identity: no peer certificate presented")
	}
	return blake2b.Sum256(state.PeerCertificates[0].RawSubjectPublicKeyInfo), nil
}

// TLSConfig returns a tls.Config that presents id's certificate and accepts
// any peer certificate (self-signed peers are verified by fingerprint
// elsewhere, at the overlay handshake layer, not by a CA chain).
func (id *Identity) TLSConfig() *tls.Config {
	return &tls.Config{
		Certificates:       []tls.Certificate{id.Cert},
		InsecureSkipVerify: true,
		MinVersion:         tls.VersionTLS13,
	}
}
