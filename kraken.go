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


// Package kraken wires the connector, embedding cache, vector index and
// scheduler into one service that keeps channel history searchable.
package kraken

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/krakenhq/kraken/ai"
	"github.com/krakenhq/kraken/ai/openai"
	"github.com/krakenhq/kraken/cache"
	"github.com/krakenhq/kraken/config"
	"github.com/krakenhq/kraken/connector"
	"github.com/krakenhq/kraken/connector/slack"
	"github.com/krakenhq/kraken/index"
	"github.com/krakenhq/kraken/index/local"
	"github.com/krakenhq/kraken/index/qdrant"
	"github.com/krakenhq/kraken/ingestion"
	"github.com/krakenhq/kraken/retry"
	"github.com/krakenhq/kraken/scheduler"
	"github.com/krakenhq/kraken/search"
	"github.com/krakenhq/kraken/storage"
	"github.com/krakenhq/kraken/storage/badger"
	"github.com/krakenhq/kraken/tracker"
)

// Service owns the full sync and search stack for one process.
type Service struct {
	cfg      *config.Config
	backend  *badger.Backend
	items    storage.ItemRepository
	cursors  storage.CursorRepository
	embedder ai.Embedder
	cache    *cache.Cache
	index    index.Index
	pipeline *ingestion.Pipeline
	searcher *search.Searcher
	loop     *scheduler.Loop
	tracker  *tracker.Tracker
	logger   *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	logger    *slog.Logger
	connector connector.Connector
	embedder  ai.Embedder
}

// WithLogger sets the logger used by every component.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) { o.logger = logger }
}

// WithConnector replaces the default Slack connector.
func WithConnector(conn connector.Connector) ServiceOption {
	return func(o *serviceOptions) { o.connector = conn }
}

// WithEmbedder replaces the default OpenAI embedder.
func WithEmbedder(embedder ai.Embedder) ServiceOption {
	return func(o *serviceOptions) { o.embedder = embedder }
}

// NewService opens storage, connects the embedding provider and index,
// and assembles the pipeline, searcher and scheduler. On any error the
// already-opened pieces are closed before returning.
func NewService(ctx context.Context, cfg *config.Config, opts ...ServiceOption) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &serviceOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.logger

	aiCfg := embeddingConfig(cfg)
	if err := aiCfg.Validate(); err != nil {
		return nil, err
	}

	backend, err := badger.OpenBackend(cfg.DataDir, false)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	items := badger.NewItemRepository(backend)
	cursors := badger.NewCursorRepository(backend)

	embedder := options.embedder
	if embedder == nil {
		embedder, err = openai.NewEmbedder(aiCfg)
		if err != nil {
			backend.Close()
			return nil, fmt.Errorf("embedding provider: %w", err)
		}
	}

	embedCache, err := cache.New(badger.NewVectorStore(backend), embedder, aiCfg.Model,
		cache.WithLogger(logger))
	if err != nil {
		backend.Close()
		return nil, err
	}

	idx, err := buildIndex(ctx, cfg, aiCfg, items)
	if err != nil {
		backend.Close()
		return nil, err
	}

	conn := options.connector
	if conn == nil {
		conn, err = slack.NewClient(cfg.SlackToken, slack.WithLogger(logger))
		if err != nil {
			backend.Close()
			return nil, fmt.Errorf("slack connector: %w", err)
		}
	}

	policy := retry.NewPolicy(retry.WithLogger(logger))
	failures := tracker.New(tracker.WithLogger(logger))

	pipeline, err := ingestion.NewPipeline(conn, embedCache, embedder, idx, cursors,
		ingestion.WithRetryPolicy(policy),
		ingestion.WithTracker(failures),
		ingestion.WithBatchLimit(aiCfg.BatchLimit),
		ingestion.WithDimension(aiCfg.Dimension),
		ingestion.WithLogger(logger))
	if err != nil {
		backend.Close()
		return nil, err
	}

	searcher, err := search.NewSearcher(embedCache, idx,
		search.WithRetryPolicy(policy),
		search.WithLogger(logger))
	if err != nil {
		backend.Close()
		return nil, err
	}

	loop, err := scheduler.NewLoop(pipeline, cfg.Channels,
		scheduler.WithInterval(cfg.Interval),
		scheduler.WithPoolSize(cfg.PoolSize),
		scheduler.WithTracker(failures),
		scheduler.WithLogger(logger))
	if err != nil {
		backend.Close()
		return nil, err
	}

	return &Service{
		cfg:      cfg,
		backend:  backend,
		items:    items,
		cursors:  cursors,
		embedder: embedder,
		cache:    embedCache,
		index:    idx,
		pipeline: pipeline,
		searcher: searcher,
		loop:     loop,
		tracker:  failures,
		logger:   logger,
	}, nil
}

// Close stops the scheduler and releases storage. Safe to call once.
func (s *Service) Close() error {
	s.loop.Stop()

	if err := s.cursors.Close(); err != nil {
		s.logger.Error("error closing cursor repository", "err", err)
	}
	if err := s.items.Close(); err != nil {
		s.logger.Error("error closing item repository", "err", err)
	}
	if err := s.backend.Close(); err != nil {
		s.logger.Error("error closing storage backend", "err", err)
		return err
	}
	return nil
}

// Pipeline returns the ingestion pipeline for one-shot syncs.
func (s *Service) Pipeline() *ingestion.Pipeline { return s.pipeline }

// Searcher returns the similarity searcher.
func (s *Service) Searcher() *search.Searcher { return s.searcher }

// Scheduler returns the sync loop.
func (s *Service) Scheduler() *scheduler.Loop { return s.loop }

// Tracker returns the failure tracker.
func (s *Service) Tracker() *tracker.Tracker { return s.tracker }

func embeddingConfig(cfg *config.Config) *ai.Config {
	var opts []ai.ConfigOption
	if cfg.EmbeddingHost != "" {
		opts = append(opts, ai.WithHost(cfg.EmbeddingHost))
	}
	opts = append(opts, ai.WithToken(cfg.EmbeddingToken))
	if cfg.EmbeddingModel != "" {
		opts = append(opts, ai.WithModel(cfg.EmbeddingModel))
	}
	if cfg.EmbeddingDimension > 0 {
		opts = append(opts, ai.WithDimension(cfg.EmbeddingDimension))
	}
	if cfg.EmbeddingBatch > 0 {
		opts = append(opts, ai.WithBatchLimit(cfg.EmbeddingBatch))
	}
	return ai.NewConfig(opts...)
}

// buildIndex selects the remote index when a Qdrant URL is configured,
// otherwise searches the local repository directly. The remote
// collection's dimension must match the provider's or queries would
// compare incompatible vectors.
func buildIndex(ctx context.Context, cfg *config.Config, aiCfg *ai.Config, items storage.ItemRepository) (index.Index, error) {
	if cfg.QdrantURL == "" {
		return local.New(items, aiCfg.Dimension)
	}

	remote, err := qdrant.New(qdrant.Config{
		URL:        cfg.QdrantURL,
		APIKey:     cfg.QdrantAPIKey,
		Collection: cfg.QdrantCollection,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant index: %w", err)
	}
	if err := remote.EnsureCollection(ctx, aiCfg.Dimension); err != nil {
		return nil, fmt.Errorf("ensure collection: %w", err)
	}
	dimension, err := remote.Dimension(ctx)
	if err != nil {
		return nil, fmt.Errorf("read collection dimension: %w", err)
	}
	if dimension != aiCfg.Dimension {
		return nil, fmt.Errorf("collection dimension %d does not match provider dimension %d",
			dimension, aiCfg.Dimension)
	}
	return remote, nil
}
