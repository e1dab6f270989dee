// Package sha256 derives fallback record identities from stable record content.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Prefix marks identities that were derived from content rather than read from the source.
const Prefix = "sha256:"

// Hasher implements crawler.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	digest := sha256.New()
	if _, err := digest.Write(data); err != nil {
		return "", fmt.Errorf("sha256 write: %w", err)
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}
