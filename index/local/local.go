// Package local adapts the badger item repository into a vector index.
// It trades approximate-NN structures for an exact scan, which is fine at
// the data volumes a single workspace produces.
package local

import (
	"context"
	"errors"

	"github.com/krakenhq/kraken/core"
	"github.com/krakenhq/kraken/index"
	"github.com/krakenhq/kraken/storage"
)

// Index implements index.Index on top of a storage.ItemRepository.
type Index struct {
	repo      storage.ItemRepository
	dimension int
}

var _ index.Index = (*Index)(nil)

// New creates a local index with a fixed dimension over repo.
func New(repo storage.ItemRepository, dimension int) (*Index, error) {
	if repo == nil {
		return nil, errors.New("item repository required")
	}
	if dimension <= 0 {
		return nil, errors.New("dimension must be positive")
	}
	return &Index{
		repo:      repo,
		dimension: dimension,
	}, nil
}

// Upsert writes items through the repository. Dimension mismatches are
// rejected per item before any write.
func (i *Index) Upsert(ctx context.Context, items []*core.Item) error {
	for _, item := range items {
		if err := core.ValidateVector(item.Vector, i.dimension); err != nil {
			return err
		}
	}
	_, err := i.repo.UpsertItems(ctx, items...)
	return err
}

// Search delegates to the repository's brute-force cosine scan.
func (i *Index) Search(ctx context.Context, vector []float32, threshold float32, limit int) ([]*core.SearchResult, error) {
	return i.repo.FindSimilar(ctx, vector, threshold, limit)
}

// Dimension returns the configured dimension.
func (i *Index) Dimension(ctx context.Context) (int, error) {
	return i.dimension, nil
}
