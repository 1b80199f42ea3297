package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainProtocol = "consim/protocol/v1"
	DomainResults  = "consim/results/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ProtocolHash computes the content hash of a protocol. Two protocol texts
// that parse to the same IR share a hash, whatever their formatting.
func ProtocolHash(p *ProtocolIR) (string, error) {
	m, err := p.Canonical()
	if err != nil {
		return "", fmt.Errorf("ProtocolHash: %w", err)
	}
	return ContentHash(DomainProtocol, m)
}

// ContentHash hashes the canonical JSON form of v under domain.
func ContentHash(domain string, v any) (string, error) {
	data, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("ContentHash: failed to marshal: %w", err)
	}
	return hashWithDomain(domain, data), nil
}

// MustProtocolHash is like ProtocolHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustProtocolHash(p *ProtocolIR) string {
	h, err := ProtocolHash(p)
	if err != nil {
		panic(err)
	}
	return h
}
