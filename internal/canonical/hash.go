package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Hash computes a domain-separated SHA-256 over the canonical JSON of v.
// Format: SHA256(domain + 0x00 + canonical(v)), hex encoded.
// The null byte separator prevents domain/data boundary ambiguity.
// Domain strings carry a version suffix (e.g. "probemap/state/v1") to
// enable future algorithm migration.
func Hash(domain string, v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonical hash: %w", err)
	}
	return HashBytes(domain, data), nil
}

// HashBytes computes the domain-separated SHA-256 of pre-serialized bytes.
// Callers must pass canonical JSON or the hash will not be content-stable.
func HashBytes(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// MustHash is like Hash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustHash(domain string, v any) string {
	id, err := Hash(domain, v)
	if err != nil {
		panic(err)
	}
	return id
}
