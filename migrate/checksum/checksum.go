// Package checksum computes and compares migration content digests.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Result is the outcome of comparing a file digest against the ledger.
type Result int

const (
	// Match means the file content is identical to what was applied.
	Match Result = iota
	// Mismatch means the file was edited after it was applied.
	Mismatch
)

// Compute returns the hex-encoded SHA-256 digest of the raw file bytes.
func Compute(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Verify compares a freshly computed digest against the one recorded in the
// ledger at apply time.
func Verify(computed, recorded string) Result {
	if computed == recorded {
		return Match
	}
	return Mismatch
}
