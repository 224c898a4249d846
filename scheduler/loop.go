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


package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/krakenhq/kraken/ingestion"
	"github.com/krakenhq/kraken/tracker"
)

// DefaultInterval is the pause between sync rounds.
const DefaultInterval = 10 * time.Minute

// Runner executes one sync for one channel. *ingestion.Pipeline
// satisfies it.
type Runner interface {
	RunSync(ctx context.Context, channel string, opts *ingestion.RunOptions) (*ingestion.SyncReport, error)
}

// Loop periodically syncs a fixed set of channels.
type Loop struct {
	runner   Runner
	channels []string
	interval time.Duration
	tracker  *tracker.Tracker
	pool     *ants.Pool
	poolSize int
	logger   *slog.Logger

	mu      sync.Mutex
	stop    chan struct{}
	trigger chan struct{}
	wg      sync.WaitGroup
}

// Option configures a Loop.
type Option func(*Loop)

// WithInterval sets the pause between sync rounds.
func WithInterval(interval time.Duration) Option {
	return func(l *Loop) { l.interval = interval }
}

// WithTracker sets the failure tracker consulted for alerts after each
// run.
func WithTracker(t *tracker.Tracker) Option {
	return func(l *Loop) { l.tracker = t }
}

// WithPoolSize sets the number of channels synced concurrently.
func WithPoolSize(size int) Option {
	return func(l *Loop) { l.poolSize = size }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// NewLoop builds a Loop over the given runner and channels.
func NewLoop(runner Runner, channels []string, opts ...Option) (*Loop, error) {
	if runner == nil {
		return nil, ErrRunnerRequired
	}
	if len(channels) == 0 {
		return nil, ErrNoChannels
	}
	l := &Loop{
		runner:   runner,
		channels: channels,
		interval: DefaultInterval,
		poolSize: 4,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.poolSize < 1 {
		l.poolSize = 1
	}
	return l, nil
}

// Start launches the loop. The first round runs immediately; later
// rounds follow every interval. Start returns once the loop goroutine
// is running.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stop != nil {
		return ErrAlreadyStarted
	}

	pool, err := ants.NewPool(l.poolSize)
	if err != nil {
		return err
	}
	l.pool = pool

	l.stop = make(chan struct{})
	l.trigger = make(chan struct{}, 1)

	l.wg.Add(1)
	go l.run(ctx, l.stop)

	l.logger.Info("scheduler started",
		"channels", len(l.channels), "interval", l.interval, "workers", l.poolSize)
	return nil
}

// TriggerNow requests an immediate sync round. It is a no-op when a
// trigger is already pending or the loop is stopped.
func (l *Loop) TriggerNow() {
	l.mu.Lock()
	trigger := l.trigger
	l.mu.Unlock()

	if trigger == nil {
		return
	}
	select {
	case trigger <- struct{}{}:
	default:
	}
}

// Stop halts the loop and waits for in-flight syncs to finish. It is
// safe to call on a stopped loop.
func (l *Loop) Stop() {
	l.mu.Lock()
	stop := l.stop
	l.stop = nil
	l.trigger = nil
	l.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	l.wg.Wait()
	l.pool.Release()
	l.logger.Info("scheduler stopped")
}

func (l *Loop) run(ctx context.Context, stop <-chan struct{}) {
	defer l.wg.Done()

	// Syncs run detached from the loop's lifetime: Stop ends the loop via
	// the stop channel, never by cancellation, so an in-flight run always
	// finishes its pages instead of aborting mid-page.
	jobCtx := context.WithoutCancel(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.dispatch(jobCtx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			l.dispatch(jobCtx)
		case <-l.triggerCh():
			l.dispatch(jobCtx)
		}
	}
}

func (l *Loop) triggerCh() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.trigger
}

// dispatch submits one sync job per channel onto the pool and waits for
// the round to complete. Waiting keeps rounds ordered: a tick that fires
// while a round is still running extends it instead of doubling it.
func (l *Loop) dispatch(ctx context.Context) {
	var round sync.WaitGroup
	for _, channel := range l.channels {
		channel := channel
		round.Add(1)
		err := l.pool.Submit(func() {
			defer round.Done()
			l.syncOne(ctx, channel)
		})
		if err != nil {
			round.Done()
			l.logger.Error("failed to submit sync job", "channel", channel, "err", err)
		}
	}
	round.Wait()
}

func (l *Loop) syncOne(ctx context.Context, channel string) {
	report, err := l.runner.RunSync(ctx, channel, &ingestion.RunOptions{})
	switch {
	case err != nil:
		l.logger.Error("channel sync failed", "channel", channel, "err", err)
	case report.Status == ingestion.StatusAlreadyRunning:
		l.logger.Debug("channel sync still in progress, skipped", "channel", channel)
	default:
		l.logger.Debug("channel sync completed",
			"channel", channel, "stored", report.Stored, "errors", report.Errors)
	}

	if l.tracker != nil {
		if alert, message := l.tracker.ShouldAlert(channel); alert {
			l.logger.Error("sync health alert", "channel", channel, "alert", message)
		}
	}
}
