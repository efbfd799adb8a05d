// Package pseudonym derives stable, non-reversible identifiers for phone and
// document numbers so they can appear in logs, metrics labels and audit events
// without the raw value.
package pseudonym

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Hasher computes keyed BLAKE2b-256 digests truncated to 16 bytes.
type Hasher struct {
	key []byte
}

// New returns a Hasher for key. Keys longer than 64 bytes are truncated, the
// BLAKE2b key size limit. An empty key yields unkeyed digests.
func New(key string) *Hasher {
	k := []byte(key)
	if len(k) > blake2b.Size {
		k = k[:blake2b.Size]
	}
	return &Hasher{key: k}
}

// Hash returns the hex digest for value, or "" for an empty value.
// A nil Hasher hashes without a key.
func (h *Hasher) Hash(value string) string {
	if value == "" {
		return ""
	}
	var key []byte
	if h != nil {
		key = h.key
	}
	mac, err := blake2b.New256(key)
	if err != nil {
		// only reachable with an oversize key, which New prevents
		return ""
	}
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil)[:16])
}
