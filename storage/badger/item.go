package badger

import (
	"context"
	"math"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/krakenhq/kraken/core"
	"github.com/krakenhq/kraken/storage"
)

// ItemRepository implements storage.ItemRepository for BadgerDB.
// Items are keyed by the BLAKE2b hash of their external ID, which makes
// upserts naturally idempotent: re-ingesting an item overwrites the same row.
type ItemRepository struct {
	backend *Backend
}

var _ storage.ItemRepository = (*ItemRepository)(nil)

// NewItemRepository creates a new ItemRepository.
func NewItemRepository(backend *Backend) *ItemRepository {
	return &ItemRepository{
		backend: backend,
	}
}

// Close is a no-op; the backend owns the database handle.
func (r *ItemRepository) Close() error {
	return nil
}

// UpsertItems stores items keyed by their external ID.
// Existing rows keep their InsertedAt timestamp; everything else is overwritten.
func (r *ItemRepository) UpsertItems(ctx context.Context, items ...*core.Item) (int, error) {
	stored := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		now := time.Now().UTC()
		for _, item := range items {
			key := makeItemKey(item.ID())

			old, err := r.readItem(tx, key)
			if err != nil {
				return err
			}
			if old != nil {
				item.InsertedAt = old.InsertedAt
			} else {
				item.InsertedAt = now
			}
			item.UpdatedAt = now

			value := storage.MarshalItem(item)
			if err := tx.Set(key, value); err != nil {
				return err
			}
			stored++
		}
		return tx.Commit()
	}, true)

	if err != nil {
		return 0, err
	}
	return stored, nil
}

// GetItem retrieves a single item by ID.
func (r *ItemRepository) GetItem(ctx context.Context, id core.ID) (*core.Item, error) {
	var result *core.Item
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeItemKey(id)
		var err error
		result, err = r.readItem(tx, key)
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// CountItems returns the number of stored items.
func (r *ItemRepository) CountItems(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(itemPrefix + ":")
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// FindSimilar scans all stored items and ranks them by cosine similarity to
// the query vector. Items with similarity strictly greater than threshold are
// returned, ordered by similarity descending, ties broken by CreatedAt
// descending, capped at limit.
func (r *ItemRepository) FindSimilar(ctx context.Context, vector []float32, threshold float32, limit int) ([]*core.SearchResult, error) {
	var results []*core.SearchResult

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(itemPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var item *core.Item
			err := iter.Item().Value(func(val []byte) error {
				var err error
				item, err = storage.UnmarshalItem(val)
				return err
			})
			if err != nil {
				return err
			}
			if item == nil || len(item.Vector) == 0 {
				continue
			}

			similarity := cosineSimilarity(vector, item.Vector)
			if similarity > threshold {
				results = append(results, &core.SearchResult{
					Item:       item,
					Similarity: similarity,
				})
			}
		}
		return nil
	}, false)

	if err != nil {
		return nil, err
	}

	slices.SortFunc(results, func(a, b *core.SearchResult) int {
		if a.Similarity != b.Similarity {
			if a.Similarity > b.Similarity {
				return -1
			}
			return 1
		}
		// Equal scores: newer items first
		return b.Item.CreatedAt.Compare(a.Item.CreatedAt)
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// readItem reads an item from the transaction.
// Returns nil, nil when the key does not exist.
func (r *ItemRepository) readItem(tx *badger.Txn, key []byte) (*core.Item, error) {
	entry, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var item *core.Item
	err = entry.Value(func(val []byte) error {
		var unmarshalErr error
		item, unmarshalErr = storage.UnmarshalItem(val)
		return unmarshalErr
	})
	return item, err
}

// cosineSimilarity returns dot(a,b) / (|a| * |b|).
// Vectors of different lengths come from different embedding spaces and
// never match; comparing a shared prefix would score them anyway.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	for _, v := range a {
		normA += float64(v) * float64(v)
	}
	for _, v := range b {
		normB += float64(v) * float64(v)
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
