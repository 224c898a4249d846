package cache

import (
	"encoding/hex"
	"strings"

	"github.com/go-crypt/x/blake2b"
)

// Normalize canonicalizes text before hashing: surrounding whitespace is
// trimmed and internal runs of whitespace collapse to a single space, so
// trivial formatting differences hit the same cache entry.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Key derives the cache key for text under a given embedding model.
// The model identifier is part of the key, so a model upgrade never silently
// reuses stale vectors.
func Key(model, text string) string {
	h, _ := blake2b.New(32, nil)
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(Normalize(text)))
	return hex.EncodeToString(h.Sum(nil))
}
