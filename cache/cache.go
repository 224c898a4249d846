// Copyright 2026 The Kraken Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package cache provides a content-addressed cache in front of the embedding
// provider. Entries are keyed by hash(model, normalized text) and are
// immutable once written; concurrent misses for the same key collapse into a
// single provider call. The cache carries no eviction policy — acceptable for
// the targeted data volumes, but add one before running at larger scale.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/krakenhq/kraken/ai"
)

var (
	// ErrStoreRequired is returned when a store is not provided.
	ErrStoreRequired = errors.New("cache store required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrModelRequired is returned when the model identifier is empty.
	ErrModelRequired = errors.New("embedding model identifier required")
)

// Store is the backing storage for cached vectors.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get retrieves a cached vector. The second return reports presence.
	Get(ctx context.Context, key string) ([]float32, bool, error)

	// Put stores a vector under key, overwriting any previous entry.
	Put(ctx context.Context, key string, vector []float32) error
}

// MemoryStore is a map-backed Store for tests and cache-disabled setups.
type MemoryStore struct {
	mu      sync.RWMutex
	vectors map[string][]float32
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vectors: make(map[string][]float32),
	}
}

// Get retrieves a cached vector.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]float32, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vector, ok := s.vectors[key]
	return vector, ok, nil
}

// Put stores a vector.
func (s *MemoryStore) Put(ctx context.Context, key string, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors[key] = vector
	return nil
}

// Len returns the number of cached entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}

// Cache is a content-addressed embedding cache with single-flight collapsing.
// It is shared between the scheduled pipeline and ad-hoc search queries.
type Cache struct {
	store    Store
	embedder ai.Embedder
	model    string
	group    singleflight.Group
	logger   *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
	}
}

// New creates an embedding cache over store, computing misses with embedder.
// model identifies the embedding model and is baked into every cache key.
func New(store Store, embedder ai.Embedder, model string, opts ...Option) (*Cache, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if model == "" {
		return nil, ErrModelRequired
	}

	c := &Cache{
		store:    store,
		embedder: embedder,
		model:    model,
		logger:   slog.Default().With("component", "embedding-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Model returns the embedding model identifier baked into cache keys.
func (c *Cache) Model() string {
	return c.model
}

// Lookup checks for a cached vector without computing on a miss.
// The pipeline uses it to partition pages into hits and misses before
// batching the misses to the provider.
func (c *Cache) Lookup(ctx context.Context, text string) ([]float32, bool, error) {
	vector, ok, err := c.store.Get(ctx, Key(c.model, text))
	if err != nil {
		return nil, false, err
	}
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return vector, ok, nil
}

// Put stores a computed vector for text.
// The pipeline uses it to fill the cache after a batch provider call.
func (c *Cache) Put(ctx context.Context, text string, vector []float32) error {
	return c.store.Put(ctx, Key(c.model, text), vector)
}

// GetOrCompute returns the cached vector for text, computing it through the
// embedder on a miss. Concurrent callers for the same key await one shared
// computation; exactly one provider call is issued per key.
func (c *Cache) GetOrCompute(ctx context.Context, text string) ([]float32, error) {
	key := Key(c.model, text)

	vector, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		c.hits.Add(1)
		return vector, nil
	}
	c.misses.Add(1)

	// The flight is shared by every collapsed caller, so it must not die
	// with whichever caller happened to start it.
	flightCtx := context.WithoutCancel(ctx)

	result, err, _ := c.group.Do(key, func() (any, error) {
		// Another caller may have finished while we queued
		vector, ok, err := c.store.Get(flightCtx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return vector, nil
		}

		computed, err := c.embedder.EmbedText(flightCtx, text)
		if err != nil {
			return nil, err
		}
		if err := c.store.Put(flightCtx, key, computed); err != nil {
			return nil, err
		}
		return computed, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]float32), nil
}

// Stats returns the number of cache hits and misses observed so far.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
