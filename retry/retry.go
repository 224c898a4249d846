package retry

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

const (
	// DefaultMaxAttempts bounds how often a transient failure is retried.
	DefaultMaxAttempts = 5

	// DefaultBaseDelay is the backoff delay before the first retry.
	DefaultBaseDelay = 500 * time.Millisecond

	// DefaultMaxDelay caps the exponential backoff.
	DefaultMaxDelay = 30 * time.Second
)

// Policy retries transient failures with exponential backoff and jitter.
// Permanent and data failures are returned immediately. A Policy is stateless
// between calls: backoff delays for one operation never block another.
type Policy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	logger      *slog.Logger

	// jitter returns a random duration in [0, max). Injectable for tests.
	jitter func(max time.Duration) time.Duration
}

// Option configures a Policy.
type Option func(*Policy)

// WithMaxAttempts sets the attempt bound. Values below 1 are clamped to 1.
func WithMaxAttempts(n int) Option {
	return func(p *Policy) {
		if n < 1 {
			n = 1
		}
		p.maxAttempts = n
	}
}

// WithBaseDelay sets the backoff delay before the first retry.
func WithBaseDelay(d time.Duration) Option {
	return func(p *Policy) {
		p.baseDelay = d
	}
}

// WithMaxDelay caps the exponential backoff.
func WithMaxDelay(d time.Duration) Option {
	return func(p *Policy) {
		p.maxDelay = d
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Policy) {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
	}
}

// NewPolicy creates a retry policy with the default attempt bound and delays.
func NewPolicy(opts ...Option) *Policy {
	p := &Policy{
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		maxDelay:    DefaultMaxDelay,
		logger:      slog.Default(),
		jitter: func(max time.Duration) time.Duration {
			if max <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(int64(max)))
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Do executes fn, retrying transient failures with exponential backoff.
// op names the operation for logging and error tagging. The returned error is
// the last failure once attempts are exhausted, or the first non-transient one.
func (p *Policy) Do(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		// Check context before attempting
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = fn()
		if lastErr == nil {
			if attempt > 0 {
				p.logger.Debug("operation succeeded after retry", "op", op, "attempt", attempt+1)
			}
			return nil
		}

		kind := Classify(lastErr)
		if kind != KindTransient {
			p.logger.Warn("operation failed with non-retryable error",
				"op", op, "kind", kind.String(), "err", lastErr)
			return lastErr
		}

		// Don't sleep after the last attempt
		if attempt == p.maxAttempts-1 {
			break
		}

		delay := p.backoffDelay(attempt)
		p.logger.Warn("operation failed, will retry",
			"op", op, "attempt", attempt+1, "maxAttempts", p.maxAttempts,
			"delay", delay, "err", lastErr)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	p.logger.Error("operation failed after all attempts",
		"op", op, "attempts", p.maxAttempts, "err", lastErr)
	return lastErr
}

// backoffDelay returns min(maxDelay, base*2^attempt) plus uniform jitter
// in [0, delay/2].
func (p *Policy) backoffDelay(attempt int) time.Duration {
	delay := p.baseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= p.maxDelay {
			delay = p.maxDelay
			break
		}
	}
	return delay + p.jitter(delay/2)
}

// Execute runs fn through the policy and returns its result.
// It is the value-returning companion to Policy.Do.
func Execute[T any](ctx context.Context, p *Policy, op string, fn func() (T, error)) (T, error) {
	var result T
	err := p.Do(ctx, op, func() error {
		var fnErr error
		result, fnErr = fn()
		return fnErr
	})
	return result, err
}
