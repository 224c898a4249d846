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


package tracker

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/krakenhq/kraken/retry"
)

const (
	// DefaultConsecutiveThreshold is the run length of back-to-back
	// failures that raises an alert.
	DefaultConsecutiveThreshold = 3

	// DefaultWindowThreshold is the number of failures inside the
	// rolling window that raises an alert.
	DefaultWindowThreshold = 10

	// DefaultWindow is the rolling window size.
	DefaultWindow = 24 * time.Hour
)

// Failure is a single recorded sync failure.
type Failure struct {
	At      time.Time
	Kind    retry.Kind
	Context string
}

// ChannelStats is a snapshot of a channel's failure state.
type ChannelStats struct {
	Channel       string
	Consecutive   int
	WindowCount   int
	LastFailure   time.Time
	LastSuccess   time.Time
	TotalFailures uint64
}

type channelState struct {
	failures      []Failure // window-pruned, ascending by At
	consecutive   int
	lastSuccess   time.Time
	totalFailures uint64
	alerted       bool
}

// Tracker accumulates per-channel failure history in memory. It is safe
// for concurrent use.
type Tracker struct {
	mu                   sync.Mutex
	channels             map[string]*channelState
	window               time.Duration
	windowThreshold      int
	consecutiveThreshold int
	logger               *slog.Logger
	now                  func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithWindow sets the rolling window size.
func WithWindow(window time.Duration) Option {
	return func(t *Tracker) { t.window = window }
}

// WithWindowThreshold sets the failure count inside the window that
// raises an alert.
func WithWindowThreshold(n int) Option {
	return func(t *Tracker) { t.windowThreshold = n }
}

// WithConsecutiveThreshold sets the run length of consecutive failures
// that raises an alert.
func WithConsecutiveThreshold(n int) Option {
	return func(t *Tracker) { t.consecutiveThreshold = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

// New builds a Tracker with the default thresholds.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		channels:             make(map[string]*channelState),
		window:               DefaultWindow,
		windowThreshold:      DefaultWindowThreshold,
		consecutiveThreshold: DefaultConsecutiveThreshold,
		logger:               slog.Default(),
		now:                  time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record notes a failed sync for channel. Data errors describe bad
// individual items, not a broken channel, so they are logged but do not
// count toward alert thresholds.
func (t *Tracker) Record(channel string, kind retry.Kind, context string) {
	if kind == retry.KindData {
		t.logger.Warn("data error", "channel", channel, "context", context)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.state(channel)
	now := t.now()
	state.failures = append(state.failures, Failure{At: now, Kind: kind, Context: context})
	state.consecutive++
	state.totalFailures++
	t.prune(state, now)

	t.logger.Warn("sync failure recorded",
		"channel", channel, "kind", kind, "context", context,
		"consecutive", state.consecutive, "inWindow", len(state.failures))
}

// RecordSuccess notes a completed sync for channel, ending any run of
// consecutive failures and re-arming the alert.
func (t *Tracker) RecordSuccess(channel string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.state(channel)
	state.consecutive = 0
	state.lastSuccess = t.now()
	state.alerted = false
}

// ShouldAlert reports whether channel's failure pattern has crossed a
// threshold since the last alert. It returns at most one true per
// incident: further failures after an alert stay quiet until a success
// resets the channel.
func (t *Tracker) ShouldAlert(channel string) (bool, string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.channels[channel]
	if !ok || state.alerted {
		return false, ""
	}
	t.prune(state, t.now())

	switch {
	case state.consecutive >= t.consecutiveThreshold:
		state.alerted = true
		return true, fmt.Sprintf("channel %s failed %d syncs in a row (last: %s)",
			channel, state.consecutive, lastContext(state))
	case len(state.failures) >= t.windowThreshold:
		state.alerted = true
		return true, fmt.Sprintf("channel %s failed %d syncs in the last %s (last: %s)",
			channel, len(state.failures), t.window, lastContext(state))
	}
	return false, ""
}

// Stats returns a snapshot of channel's failure state.
func (t *Tracker) Stats(channel string) ChannelStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := ChannelStats{Channel: channel}
	state, ok := t.channels[channel]
	if !ok {
		return stats
	}
	t.prune(state, t.now())

	stats.Consecutive = state.consecutive
	stats.WindowCount = len(state.failures)
	stats.LastSuccess = state.lastSuccess
	stats.TotalFailures = state.totalFailures
	if n := len(state.failures); n > 0 {
		stats.LastFailure = state.failures[n-1].At
	}
	return stats
}

func (t *Tracker) state(channel string) *channelState {
	state, ok := t.channels[channel]
	if !ok {
		state = &channelState{}
		t.channels[channel] = state
	}
	return state
}

// prune drops failures that have aged out of the window. Failures are
// appended in time order so the live suffix is contiguous.
func (t *Tracker) prune(state *channelState, now time.Time) {
	cutoff := now.Add(-t.window)
	i := 0
	for i < len(state.failures) && state.failures[i].At.Before(cutoff) {
		i++
	}
	if i > 0 {
		state.failures = append(state.failures[:0], state.failures[i:]...)
	}
}

func lastContext(state *channelState) string {
	if n := len(state.failures); n > 0 {
		return state.failures[n-1].Context
	}
	return "unknown"
}
