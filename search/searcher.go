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


package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/krakenhq/kraken/cache"
	"github.com/krakenhq/kraken/core"
	"github.com/krakenhq/kraken/index"
	"github.com/krakenhq/kraken/retry"
)

const (
	// DefaultThreshold is the minimum cosine similarity a match must
	// strictly exceed to be returned.
	DefaultThreshold = 0.35

	// DefaultLimit caps the number of returned matches.
	DefaultLimit = 5
)

// Searcher embeds query text and retrieves the most similar stored items.
type Searcher struct {
	cache  *cache.Cache
	index  index.Index
	policy *retry.Policy
	logger *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithRetryPolicy sets the policy used for transient embedding failures.
func WithRetryPolicy(p *retry.Policy) Option {
	return func(s *Searcher) { s.policy = p }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) { s.logger = logger }
}

// NewSearcher builds a Searcher over the given cache and index.
func NewSearcher(embedCache *cache.Cache, idx index.Index, opts ...Option) (*Searcher, error) {
	if embedCache == nil {
		return nil, ErrCacheRequired
	}
	if idx == nil {
		return nil, ErrIndexRequired
	}
	s := &Searcher{
		cache:  embedCache,
		index:  idx,
		policy: retry.NewPolicy(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Search embeds query and returns up to limit items whose cosine
// similarity strictly exceeds threshold, ordered by descending
// similarity. A failed embedding aborts the query: returning nothing
// would be indistinguishable from a genuine empty result.
func (s *Searcher) Search(ctx context.Context, query string, threshold float32, limit int) ([]*core.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	started := time.Now()

	vector, err := retry.Execute(ctx, s.policy, "embed query", func() ([]float32, error) {
		return s.cache.GetOrCompute(ctx, query)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedQuery, err)
	}

	results, err := s.index.Search(ctx, vector, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	s.logger.Debug("search complete",
		"matches", len(results), "threshold", threshold,
		"limit", limit, "elapsed", time.Since(started))
	return results, nil
}
