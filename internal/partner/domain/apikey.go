package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashAPIKey derives the stored digest for a raw partner API key. Only the
// digest is persisted.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
