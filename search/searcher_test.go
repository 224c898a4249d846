package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krakenhq/kraken/ai/mock"
	"github.com/krakenhq/kraken/cache"
	"github.com/krakenhq/kraken/core"
	"github.com/krakenhq/kraken/index/local"
	"github.com/krakenhq/kraken/retry"
	"github.com/krakenhq/kraken/storage/badger"
)

func newTestSearcher(t *testing.T, embedder *mock.Embedder) (*Searcher, *local.Index) {
	t.Helper()
	items, cursors, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		cursors.Close()
		items.Close()
		backend.Close()
	})

	embedCache, err := cache.New(cache.NewMemoryStore(), embedder, "test-model")
	require.NoError(t, err)

	idx, err := local.New(items, 4)
	require.NoError(t, err)

	policy := retry.NewPolicy(
		retry.WithBaseDelay(time.Microsecond),
		retry.WithMaxDelay(10*time.Microsecond),
	)
	searcher, err := NewSearcher(embedCache, idx, WithRetryPolicy(policy))
	require.NoError(t, err)
	return searcher, idx
}

func storeItems(t *testing.T, idx *local.Index, contents ...string) {
	t.Helper()
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	items := make([]*core.Item, len(contents))
	for i, content := range contents {
		items[i] = &core.Item{
			ExternalID: content,
			Content:    content,
			Channel:    "C12345678",
			CreatedAt:  created.Add(time.Duration(i) * time.Minute),
			Vector:     mock.DeterministicVector(content, 4),
		}
	}
	require.NoError(t, idx.Upsert(context.Background(), items))
}

func TestNewSearcher_Validation(t *testing.T) {
	embedder := mock.NewEmbedder()
	embedder.Dimension = 4
	_, idx := newTestSearcher(t, embedder)

	embedCache, err := cache.New(cache.NewMemoryStore(), embedder, "m")
	require.NoError(t, err)

	_, err = NewSearcher(nil, idx)
	assert.ErrorIs(t, err, ErrCacheRequired)

	_, err = NewSearcher(embedCache, nil)
	assert.ErrorIs(t, err, ErrIndexRequired)
}

func TestSearch_FindsMatchingItems(t *testing.T) {
	embedder := mock.NewEmbedder()
	embedder.Dimension = 4
	searcher, idx := newTestSearcher(t, embedder)

	storeItems(t, idx, "deploy finished", "lunch plans")

	// The mock embedder is deterministic, so the stored "deploy finished"
	// vector scores exactly 1.0 against the same query text.
	results, err := searcher.Search(context.Background(), "deploy finished", 0.99, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "deploy finished", results[0].Item.Content)
	assert.InDelta(t, 1.0, float64(results[0].Similarity), 1e-5)
}

func TestSearch_ResultsDescendBySimilarity(t *testing.T) {
	embedder := mock.NewEmbedder()
	embedder.Dimension = 4
	searcher, idx := newTestSearcher(t, embedder)

	storeItems(t, idx, "alpha", "beta", "gamma", "delta")

	results, err := searcher.Search(context.Background(), "alpha", -1, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Similarity, results[i].Similarity)
	}
	assert.Equal(t, "alpha", results[0].Item.Content)
}

func TestSearch_EmptyQuery(t *testing.T) {
	embedder := mock.NewEmbedder()
	embedder.Dimension = 4
	searcher, _ := newTestSearcher(t, embedder)

	_, err := searcher.Search(context.Background(), "   ", 0.35, 5)
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.Equal(t, 0, embedder.CallCount())
}

func TestSearch_EmbedFailureIsAnError(t *testing.T) {
	embedder := mock.NewEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, retry.Permanent("embed", errors.New("provider down"))
	}
	searcher, _ := newTestSearcher(t, embedder)

	_, err := searcher.Search(context.Background(), "anything", 0.35, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbedQuery,
		"an embedding failure must not masquerade as an empty result")
}

func TestSearch_TransientEmbedFailureRetried(t *testing.T) {
	embedder := mock.NewEmbedder()
	calls := 0
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		calls++
		if calls < 3 {
			return nil, retry.Transient("embed", errors.New("ratelimited"))
		}
		return mock.DeterministicVector(text, 4), nil
	}
	searcher, _ := newTestSearcher(t, embedder)

	_, err := searcher.Search(context.Background(), "anything", 0.35, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestSearch_QueryEmbeddingIsCached(t *testing.T) {
	embedder := mock.NewEmbedder()
	embedder.Dimension = 4
	searcher, idx := newTestSearcher(t, embedder)
	storeItems(t, idx, "deploy finished")

	ctx := context.Background()
	_, err := searcher.Search(ctx, "deploy finished", 0.35, 5)
	require.NoError(t, err)
	_, err = searcher.Search(ctx, "deploy finished", 0.35, 5)
	require.NoError(t, err)

	assert.Equal(t, 1, embedder.CallCount(), "repeated queries reuse the cached vector")
}

func TestSearch_DefaultLimit(t *testing.T) {
	embedder := mock.NewEmbedder()
	embedder.Dimension = 4
	searcher, idx := newTestSearcher(t, embedder)

	contents := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	storeItems(t, idx, contents...)

	results, err := searcher.Search(context.Background(), "a", -1, 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), DefaultLimit)
}
