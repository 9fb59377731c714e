// Package fingerprint provides the content hash and TTL gate that decide
// elaboration cache validity.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// DefaultTTL is the elaboration cache time-to-live.
const DefaultTTL = 24 * time.Hour

// Sum returns the hex-encoded SHA-256 digest of content after trimming
// leading and trailing whitespace. Empty content yields "" rather than
// the digest of the empty string, so an absent body can never match a
// stored hash.
func Sum(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ""
	}
	h := sha256.Sum256([]byte(trimmed))
	return hex.EncodeToString(h[:])
}

// Fresh reports whether lastUpdated is still within ttl. The boundary is
// strict: an entry aged exactly ttl is expired. A zero timestamp is never
// fresh; a future timestamp (negative age) is.
func Fresh(lastUpdated time.Time, ttl time.Duration) bool {
	if lastUpdated.IsZero() {
		return false
	}
	return time.Since(lastUpdated) < ttl
}

// CacheValid combines both gate conditions: the stored hash must match the
// current body's fingerprint and the entry must still be fresh.
func CacheValid(storedHash, currentBody string, lastUpdated time.Time, ttl time.Duration) bool {
	if storedHash == "" || storedHash != Sum(currentBody) {
		return false
	}
	return Fresh(lastUpdated, ttl)
}
