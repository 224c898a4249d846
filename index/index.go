// Package index defines the vector-index abstraction shared by the ingestion
// pipeline and the search service.
package index

import (
	"context"

	"github.com/krakenhq/kraken/core"
)

// Index is a durable store supporting idempotent upsert-by-id and
// threshold-filtered nearest-neighbor search.
type Index interface {
	// Upsert writes items keyed by their external ID. Writes are idempotent
	// at item level: the same id with the same content never duplicates a
	// row; content and vector fields are overwritten. Batching is a
	// transport-efficiency grouping only, not a transaction.
	Upsert(ctx context.Context, items []*core.Item) error

	// Search returns items with cosine similarity strictly greater than
	// threshold, ordered descending by similarity with ties broken by
	// CreatedAt descending, capped at limit.
	Search(ctx context.Context, vector []float32, threshold float32, limit int) ([]*core.SearchResult, error)

	// Dimension returns the fixed vector dimension D of the index,
	// checked against the embedding provider at startup.
	Dimension(ctx context.Context) (int, error)
}
