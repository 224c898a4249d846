package core

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for stored items.
// It is derived from the item's external identifier using content-based hashing,
// so re-ingesting the same item always maps to the same storage key.
type ID uint64

// IDFromContent generates a deterministic ID from text using BLAKE2b hashing.
// Identical input always produces the same ID.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// Item represents a single ingested unit from a source feed.
// It may be enriched with an embedding vector during processing.
type Item struct {
	ExternalID string            // Globally unique per source; the dedup key
	Content    string            // Message text
	Author     string            // Resolved author name
	Channel    string            // Source container the item belongs to
	CreatedAt  time.Time         // When the item was originally created at the source
	ThreadRef  string            // Optional thread identifier
	Permalink  string            // Optional link back to the source
	Vector     []float32         // Embedding vector for semantic search
	Metadata   map[string]string // Opaque source metadata (e.g. "user_id", "type")
	InsertedAt time.Time         // When the item was first stored
	UpdatedAt  time.Time         // When the item was last overwritten
}

// ID returns the storage identifier derived from the item's external ID.
func (i *Item) ID() ID {
	return IDFromContent(i.ExternalID)
}

// SyncCursor marks the newest item durably stored for one channel.
// It only ever moves forward across successful pipeline runs.
type SyncCursor struct {
	Channel         string
	LastProcessedAt time.Time
	LastProcessedID string // Tiebreak for items sharing a timestamp
	UpdatedAt       time.Time
}

// Before reports whether the cursor lies strictly before the position
// (ts, externalID). Equal timestamps fall back to comparing external IDs.
func (c *SyncCursor) Before(ts time.Time, externalID string) bool {
	if ts.After(c.LastProcessedAt) {
		return true
	}
	if ts.Equal(c.LastProcessedAt) {
		return externalID > c.LastProcessedID
	}
	return false
}

// Advance moves the cursor to (ts, externalID) if that position is newer.
// Returns true if the cursor moved. Advance never moves the cursor backwards.
func (c *SyncCursor) Advance(ts time.Time, externalID string) bool {
	if !c.Before(ts, externalID) {
		return false
	}
	c.LastProcessedAt = ts
	c.LastProcessedID = externalID
	return true
}

// SearchResult represents a search hit with its similarity score.
type SearchResult struct {
	Item       *Item
	Similarity float32
}
