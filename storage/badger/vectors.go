package badger

import (
	"context"

	"github.com/dgraph-io/badger/v4"

	"github.com/krakenhq/kraken/storage"
)

// VectorStore persists cached embedding vectors keyed by content hash.
// It satisfies the cache.Store contract; losing it costs provider calls,
// never correctness.
type VectorStore struct {
	backend *Backend
}

// NewVectorStore creates a vector store on the backend.
func NewVectorStore(backend *Backend) *VectorStore {
	return &VectorStore{
		backend: backend,
	}
}

// Get retrieves a cached vector. The second return reports presence.
func (s *VectorStore) Get(ctx context.Context, key string) ([]float32, bool, error) {
	var vector []float32
	found := false
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		entry, err := tx.Get(makeVectorKey(key))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		found = true
		return entry.Value(func(val []byte) error {
			var unmarshalErr error
			vector, unmarshalErr = storage.UnmarshalVector(val)
			return unmarshalErr
		})
	}, false)

	if err != nil {
		return nil, false, err
	}
	return vector, found, nil
}

// Put stores a vector under key, overwriting any previous entry.
func (s *VectorStore) Put(ctx context.Context, key string, vector []float32) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeVectorKey(key), storage.MarshalVector(vector)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}
