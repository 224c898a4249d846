package storage

import (
	"context"

	"github.com/krakenhq/kraken/core"
)

// CursorRepository persists per-channel sync cursors.
// Implementations must be thread-safe and write atomically
// (replace-on-write), so a crash never yields a half-written cursor.
type CursorRepository interface {
	// SaveCursor persists the cursor for its channel, replacing any
	// previous value. Sets UpdatedAt.
	SaveCursor(ctx context.Context, cursor *core.SyncCursor) error

	// LoadCursor retrieves the cursor for a channel.
	// Returns nil, nil if no cursor exists yet.
	LoadCursor(ctx context.Context, channel string) (*core.SyncCursor, error)

	// Close closes the repository and releases resources.
	Close() error
}

// ItemRepository stores ingested items keyed by their content-derived ID and
// serves brute-force vector similarity search over them. It backs the local
// vector index. Implementations must be thread-safe.
type ItemRepository interface {
	// UpsertItems stores items keyed by ExternalID. Writing the same
	// ExternalID twice overwrites the stored row; it never duplicates.
	// Sets InsertedAt on first write and UpdatedAt on overwrite.
	// Returns the number of items written.
	UpsertItems(ctx context.Context, items ...*core.Item) (int, error)

	// GetItem retrieves a single item by ID.
	// Returns ErrNotFound if the item doesn't exist.
	GetItem(ctx context.Context, id core.ID) (*core.Item, error)

	// CountItems returns the number of stored items.
	CountItems(ctx context.Context) (int, error)

	// FindSimilar finds items similar to the given vector.
	// Returns items with similarity strictly greater than threshold, up to
	// limit results, ordered by similarity descending with ties broken by
	// CreatedAt descending.
	FindSimilar(ctx context.Context, vector []float32, threshold float32, limit int) ([]*core.SearchResult, error)

	// Close closes the repository and releases resources.
	Close() error
}
