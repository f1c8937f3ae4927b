package ingestion_engine

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

const defaultNamespace = "default"

// HashID is the content address of a segment: the hex MD5 of its text.
// Identical text always maps to the same vector id, so re-ingestion
// overwrites instead of duplicating.
func HashID(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

// DeriveNamespace maps a storage key onto the index's namespace charset:
// ASCII letters, digits and ". _ - /". Non-ASCII runes are dropped, any
// other ASCII character becomes '-'.
func DeriveNamespace(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		switch {
		case r > 0x7f:
			continue
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '_', r == '-', r == '/':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	if b.Len() == 0 {
		return defaultNamespace
	}
	return b.String()
}
