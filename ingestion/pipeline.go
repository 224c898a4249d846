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


package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/krakenhq/kraken/ai"
	"github.com/krakenhq/kraken/cache"
	"github.com/krakenhq/kraken/connector"
	"github.com/krakenhq/kraken/core"
	"github.com/krakenhq/kraken/index"
	"github.com/krakenhq/kraken/retry"
	"github.com/krakenhq/kraken/storage"
	"github.com/krakenhq/kraken/tracker"
)

// Status reports how a RunSync call concluded.
type Status string

const (
	// StatusCompleted means the run executed (possibly with item-level errors).
	StatusCompleted Status = "completed"

	// StatusAlreadyRunning means another run held the channel lock;
	// this call performed no I/O.
	StatusAlreadyRunning Status = "already_running"
)

// SyncReport summarizes one RunSync call.
type SyncReport struct {
	Channel  string
	Status   Status
	Fetched  int // Items returned by the connector
	Embedded int // Cache misses computed via the provider
	Stored   int // Items upserted into the index
	Skipped  int // Non-content entries dropped by the connector plus cursor-filtered items
	Errors   int // Item-level data failures
}

// RunOptions holds optional parameters for a single run.
type RunOptions struct {
	// MaxItems bounds how many items the run ingests (0 = unlimited).
	// Used by manual backfills.
	MaxItems int
}

// Pipeline orchestrates incremental ingestion for source channels.
// It is safe for concurrent use; runs for different channels proceed in
// parallel while runs for the same channel are mutually exclusive.
type Pipeline struct {
	connector connector.Connector
	cache     *cache.Cache
	embedder  ai.Embedder
	index     index.Index
	cursors   storage.CursorRepository

	policy     *retry.Policy
	tracker    *tracker.Tracker
	batchLimit int
	maxPages   int
	dimension  int
	logger     *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRetryPolicy sets the retry policy guarding provider and index calls.
// Default is retry.NewPolicy().
func WithRetryPolicy(policy *retry.Policy) Option {
	return func(p *Pipeline) {
		if policy != nil {
			p.policy = policy
		}
	}
}

// WithTracker sets the failure tracker run outcomes are reported to.
func WithTracker(t *tracker.Tracker) Option {
	return func(p *Pipeline) {
		p.tracker = t
	}
}

// WithBatchLimit caps embedding batch sizes. Default is 100.
func WithBatchLimit(limit int) Option {
	return func(p *Pipeline) {
		if limit > 0 {
			p.batchLimit = limit
		}
	}
}

// WithMaxPages bounds how many pages a single run fetches. Default is 10.
func WithMaxPages(pages int) Option {
	return func(p *Pipeline) {
		if pages > 0 {
			p.maxPages = pages
		}
	}
}

// WithDimension sets the expected vector dimension for item validation.
// Zero disables the check.
func WithDimension(dim int) Option {
	return func(p *Pipeline) {
		p.dimension = dim
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
	}
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(
	conn connector.Connector,
	embedCache *cache.Cache,
	embedder ai.Embedder,
	idx index.Index,
	cursors storage.CursorRepository,
	opts ...Option,
) (*Pipeline, error) {
	if conn == nil {
		return nil, ErrConnectorRequired
	}
	if embedCache == nil {
		return nil, ErrCacheRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if idx == nil {
		return nil, ErrIndexRequired
	}
	if cursors == nil {
		return nil, ErrCursorRepositoryRequired
	}

	p := &Pipeline{
		connector:  conn,
		cache:      embedCache,
		embedder:   embedder,
		index:      idx,
		cursors:    cursors,
		policy:     retry.NewPolicy(),
		batchLimit: 100,
		maxPages:   10,
		logger:     slog.Default(),
		locks:      make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// RunSync performs one incremental sync for a channel.
//
// If a run is already active for the channel, RunSync returns immediately
// with StatusAlreadyRunning and a nil error; it neither queues nor waits.
// The returned report is valid even when err is non-nil: it reflects the
// pages that completed before the failure, and the cursor covers exactly
// those pages.
func (p *Pipeline) RunSync(ctx context.Context, channel string, opts *RunOptions) (*SyncReport, error) {
	report := &SyncReport{Channel: channel, Status: StatusCompleted}
	if opts == nil {
		opts = &RunOptions{}
	}

	release, acquired := p.acquire(channel)
	if !acquired {
		report.Status = StatusAlreadyRunning
		p.logger.Info("sync already running, skipping", "channel", channel)
		return report, nil
	}
	defer release()

	logger := p.logger.With("channel", channel)
	started := time.Now()

	cursor, err := p.cursors.LoadCursor(ctx, channel)
	if err != nil {
		p.recordFailure(channel, retry.KindPermanent, "load cursor", err)
		return report, fmt.Errorf("load cursor: %w", err)
	}
	if cursor == nil {
		// First sync: start from epoch zero
		cursor = &core.SyncCursor{Channel: channel}
		logger.Info("no cursor found, performing full sync")
	} else {
		logger.Info("incremental sync", "since", cursor.LastProcessedAt)
	}

	// High-water mark advances only after a page is durably upserted.
	highWater := *cursor

	runErr := p.pageLoop(ctx, channel, cursor, &highWater, opts, report, logger)

	// Persist the cursor once per run, covering exactly the fully-upserted
	// pages. On a crash nothing is persisted and the next run re-fetches;
	// upserts are idempotent so replays are harmless.
	if cursor.Before(highWater.LastProcessedAt, highWater.LastProcessedID) {
		if err := p.cursors.SaveCursor(ctx, &highWater); err != nil {
			p.recordFailure(channel, retry.KindPermanent, "save cursor", err)
			if runErr == nil {
				runErr = fmt.Errorf("save cursor: %w", err)
			}
		} else {
			logger.Debug("cursor advanced", "lastProcessedAt", highWater.LastProcessedAt,
				"lastProcessedId", highWater.LastProcessedID)
		}
	}

	if runErr != nil {
		return report, runErr
	}

	if p.tracker != nil {
		p.tracker.RecordSuccess(channel)
	}
	logger.Info("sync complete",
		"fetched", report.Fetched, "embedded", report.Embedded,
		"stored", report.Stored, "skipped", report.Skipped,
		"errors", report.Errors, "elapsed", time.Since(started))
	return report, nil
}

// pageLoop fetches and processes pages until the feed is exhausted or a
// bound is hit. Page N+1 is not fetched until page N's upsert completed,
// which keeps cursor advances ordered.
func (p *Pipeline) pageLoop(
	ctx context.Context,
	channel string,
	cursor *core.SyncCursor,
	highWater *core.SyncCursor,
	opts *RunOptions,
	report *SyncReport,
	logger *slog.Logger,
) error {
	pageToken := ""
	for pageCount := 0; ; pageCount++ {
		if pageCount >= p.maxPages {
			logger.Warn("reached page limit, stopping run", "pages", pageCount)
			return nil
		}

		page, err := retry.Execute(ctx, p.policy, "fetch page", func() (*connector.Page, error) {
			return p.connector.FetchPage(ctx, channel, cursor.LastProcessedAt, pageToken)
		})
		if err != nil {
			p.recordFailure(channel, retry.Classify(err), "fetch page", err)
			return fmt.Errorf("fetch page: %w", err)
		}

		items := page.Items
		report.Fetched += len(items)
		report.Skipped += page.Skipped

		if !p.connector.FiltersServerSide() {
			// Connector cannot filter on the server: drop already-processed
			// items here so re-delivery never duplicates work.
			filtered := items[:0]
			for _, item := range items {
				if cursor.Before(item.CreatedAt, item.ExternalID) {
					filtered = append(filtered, item)
				} else {
					report.Skipped++
				}
			}
			items = filtered
		}

		if opts.MaxItems > 0 {
			remaining := opts.MaxItems - report.Stored - report.Errors
			if remaining <= 0 {
				return nil
			}
			if len(items) > remaining {
				items = items[:remaining]
			}
		}

		if err := p.processPage(ctx, channel, items, highWater, report, logger); err != nil {
			return err
		}

		pageToken = page.NextPageToken
		if pageToken == "" {
			return nil
		}
	}
}

// processPage embeds and upserts one page, then advances the high-water mark.
func (p *Pipeline) processPage(
	ctx context.Context,
	channel string,
	items []*core.Item,
	highWater *core.SyncCursor,
	report *SyncReport,
	logger *slog.Logger,
) error {
	// Partition into cache hits and misses
	var misses []*core.Item
	ready := make([]*core.Item, 0, len(items))
	for _, item := range items {
		if err := core.ValidateItem(item); err != nil {
			report.Errors++
			p.recordFailure(channel, retry.KindData, "validate item", err)
			logger.Warn("dropping invalid item", "externalId", item.ExternalID, "err", err)
			continue
		}

		vector, hit, err := p.cache.Lookup(ctx, item.Content)
		if err != nil {
			return fmt.Errorf("cache lookup: %w", err)
		}
		if hit {
			item.Vector = vector
			ready = append(ready, item)
		} else {
			misses = append(misses, item)
		}
	}

	// Batch the misses to the provider, bounded by the batch limit
	for start := 0; start < len(misses); start += p.batchLimit {
		end := min(start+p.batchLimit, len(misses))
		batch := misses[start:end]

		texts := make([]string, len(batch))
		for i, item := range batch {
			texts[i] = item.Content
		}

		vectors, err := retry.Execute(ctx, p.policy, "embed batch", func() ([][]float32, error) {
			return p.embedder.EmbedTexts(ctx, texts)
		})
		if err != nil {
			p.recordFailure(channel, retry.Classify(err), "embed batch", err)
			return fmt.Errorf("embed batch: %w", err)
		}
		if len(vectors) != len(batch) {
			err := fmt.Errorf("embedding result mismatch: expected %d, received %d", len(batch), len(vectors))
			p.recordFailure(channel, retry.KindPermanent, "embed batch", err)
			return err
		}

		for i, item := range batch {
			if err := core.ValidateVector(vectors[i], p.dimension); err != nil {
				report.Errors++
				p.recordFailure(channel, retry.KindData, "embed batch", err)
				logger.Warn("dropping item with bad vector", "externalId", item.ExternalID, "err", err)
				continue
			}
			item.Vector = vectors[i]
			report.Embedded++
			if err := p.cache.Put(ctx, item.Content, item.Vector); err != nil {
				// Cache is a performance layer; losing a write is not fatal
				logger.Warn("failed to cache embedding", "err", err)
			}
			ready = append(ready, item)
		}
	}

	if len(ready) == 0 {
		return nil
	}

	err := p.policy.Do(ctx, "upsert page", func() error {
		return p.index.Upsert(ctx, ready)
	})
	if err != nil {
		p.recordFailure(channel, retry.Classify(err), "upsert page", err)
		return fmt.Errorf("upsert page: %w", err)
	}
	report.Stored += len(ready)

	for _, item := range ready {
		highWater.Advance(item.CreatedAt, item.ExternalID)
	}
	return nil
}

// acquire takes the per-channel run lock without blocking.
func (p *Pipeline) acquire(channel string) (release func(), ok bool) {
	p.mu.Lock()
	lock, exists := p.locks[channel]
	if !exists {
		lock = &sync.Mutex{}
		p.locks[channel] = lock
	}
	p.mu.Unlock()

	if !lock.TryLock() {
		return nil, false
	}
	return lock.Unlock, true
}

func (p *Pipeline) recordFailure(channel string, kind retry.Kind, op string, err error) {
	if p.tracker == nil {
		return
	}
	p.tracker.Record(channel, kind, fmt.Sprintf("%s: %v", op, err))
}
