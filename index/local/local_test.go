package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krakenhq/kraken/core"
	"github.com/krakenhq/kraken/storage/badger"
)

func newTestIndex(t *testing.T, dimension int) *Index {
	t.Helper()
	items, cursors, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		cursors.Close()
		items.Close()
		backend.Close()
	})

	idx, err := New(items, dimension)
	require.NoError(t, err)
	return idx
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, 3)
	assert.Error(t, err)

	items, _, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer backend.Close()

	_, err = New(items, 0)
	assert.Error(t, err)
}

func TestUpsertAndSearch(t *testing.T) {
	idx := newTestIndex(t, 3)
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	items := []*core.Item{
		{
			ExternalID: "a",
			Content:    "close",
			Channel:    "C12345678",
			CreatedAt:  created,
			Vector:     []float32{1, 0, 0},
		},
		{
			ExternalID: "b",
			Content:    "far",
			Channel:    "C12345678",
			CreatedAt:  created,
			Vector:     []float32{0, 0, 1},
		},
	}
	require.NoError(t, idx.Upsert(ctx, items))

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 0.35, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "close", results[0].Item.Content)
}

func TestUpsert_RejectsDimensionMismatch(t *testing.T) {
	idx := newTestIndex(t, 3)

	err := idx.Upsert(context.Background(), []*core.Item{{
		ExternalID: "a",
		Content:    "bad vector",
		Channel:    "C12345678",
		CreatedAt:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Vector:     []float32{1, 0}, // dimension 2, index wants 3
	}})
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestDimension(t *testing.T) {
	idx := newTestIndex(t, 7)
	dim, err := idx.Dimension(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, dim)
}
