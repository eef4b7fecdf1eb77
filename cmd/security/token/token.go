package token

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
)

// MinSecretBytes is the minimum accepted length of an HMAC-SHA256 signing secret.
const MinSecretBytes = 32

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Fingerprint returns a short, stable, non-reversible tag for s suitable for logs.
// Inputs are case-folded so that "Alice" and "alice" correlate.
func Fingerprint(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	return HashSHA256Hex(s)[:16]
}

// SecretFromEnv returns the trimmed bytes of env var key, enforcing minBytes.
// Bytes are measured, not runes, because the secret is used as raw key material.
func SecretFromEnv(key string, minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil, ErrSecretMissing
	}
	if minBytes > 0 && len(raw) < minBytes {
		return nil, ErrSecretTooShort
	}
	return []byte(raw), nil
}
