package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krakenhq/kraken/core"
	"github.com/krakenhq/kraken/storage"
)

func newTestRepos(t *testing.T) (storage.ItemRepository, storage.CursorRepository) {
	t.Helper()
	items, cursors, backend, err := NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		cursors.Close()
		items.Close()
		backend.Close()
	})
	return items, cursors
}

func testItem(externalID, content string, createdAt time.Time, vector []float32) *core.Item {
	return &core.Item{
		ExternalID: externalID,
		Content:    content,
		Author:     "alice",
		Channel:    "C12345678",
		CreatedAt:  createdAt,
		Vector:     vector,
	}
}

func TestUpsertItems_Idempotent(t *testing.T) {
	items, _ := newTestRepos(t)
	ctx := context.Background()
	created := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	item := testItem("C12345678_1700000000.000100", "first version", created, []float32{1, 0, 0})

	stored, err := items.UpsertItems(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, 1, stored)

	count, err := items.CountItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	firstInserted := item.InsertedAt
	require.False(t, firstInserted.IsZero())

	// Re-upsert with updated content overwrites in place.
	updated := testItem("C12345678_1700000000.000100", "edited version", created, []float32{0, 1, 0})
	stored, err = items.UpsertItems(ctx, updated)
	require.NoError(t, err)
	assert.Equal(t, 1, stored)

	count, err = items.CountItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "same external ID must not create a second row")

	got, err := items.GetItem(ctx, updated.ID())
	require.NoError(t, err)
	assert.Equal(t, "edited version", got.Content)
	assert.Equal(t, []float32{0, 1, 0}, got.Vector)
	assert.WithinDuration(t, firstInserted, got.InsertedAt, time.Millisecond,
		"InsertedAt must survive an overwrite")
}

func TestGetItem_NotFound(t *testing.T) {
	items, _ := newTestRepos(t)

	_, err := items.GetItem(context.Background(), core.IDFromContent("missing"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFindSimilar(t *testing.T) {
	items, _ := newTestRepos(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	_, err := items.UpsertItems(ctx,
		testItem("a", "exact match", base, []float32{1, 0, 0}),
		testItem("b", "close match", base, []float32{0.9, 0.1, 0}),
		testItem("c", "unrelated", base, []float32{0, 0, 1}),
	)
	require.NoError(t, err)

	results, err := items.FindSimilar(ctx, []float32{1, 0, 0}, 0.35, 5)
	require.NoError(t, err)
	require.Len(t, results, 2, "orthogonal vector must be filtered out")

	assert.Equal(t, "exact match", results[0].Item.Content)
	assert.Equal(t, "close match", results[1].Item.Content)
	assert.Greater(t, results[0].Similarity, results[1].Similarity)
}

func TestFindSimilar_ThresholdIsStrict(t *testing.T) {
	items, _ := newTestRepos(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	// Identical vectors score exactly 1.0.
	_, err := items.UpsertItems(ctx, testItem("a", "self", base, []float32{1, 0, 0}))
	require.NoError(t, err)

	results, err := items.FindSimilar(ctx, []float32{1, 0, 0}, 1.0, 5)
	require.NoError(t, err)
	assert.Empty(t, results, "a score equal to the threshold must not match")
}

func TestFindSimilar_TiesBreakByNewest(t *testing.T) {
	items, _ := newTestRepos(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	// Same vector, different ages: identical scores.
	_, err := items.UpsertItems(ctx,
		testItem("old", "older item", base, []float32{1, 0, 0}),
		testItem("new", "newer item", base.Add(time.Hour), []float32{1, 0, 0}),
	)
	require.NoError(t, err)

	results, err := items.FindSimilar(ctx, []float32{1, 0, 0}, 0.5, 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "newer item", results[0].Item.Content)
	assert.Equal(t, "older item", results[1].Item.Content)
}

func TestFindSimilar_Limit(t *testing.T) {
	items, _ := newTestRepos(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	_, err := items.UpsertItems(ctx,
		testItem("a", "one", base, []float32{1, 0, 0}),
		testItem("b", "two", base, []float32{0.9, 0.1, 0}),
		testItem("c", "three", base, []float32{0.8, 0.2, 0}),
	)
	require.NoError(t, err)

	results, err := items.FindSimilar(ctx, []float32{1, 0, 0}, 0.0, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestFindSimilar_SkipsUnembeddedItems(t *testing.T) {
	items, _ := newTestRepos(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	_, err := items.UpsertItems(ctx,
		testItem("a", "embedded", base, []float32{1, 0, 0}),
		testItem("b", "not yet embedded", base, nil),
	)
	require.NoError(t, err)

	results, err := items.FindSimilar(ctx, []float32{1, 0, 0}, 0.0, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "embedded", results[0].Item.Content)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-6)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.Equal(t, float32(0), cosineSimilarity([]float32{0, 0}, []float32{1, 1}),
		"zero vector must not divide by zero")
	assert.Equal(t, float32(0), cosineSimilarity([]float32{1, 0, 0}, []float32{1, 0}),
		"vectors from different embedding spaces never match")
}
