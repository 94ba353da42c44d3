// Package retry re-runs storage calls and maintenance jobs with exponential
// backoff. Callers decide which errors deserve another attempt.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// stopError ends a retry loop early.
type stopError struct{ err error }

func (e stopError) Error() string { return e.err.Error() }
func (e stopError) Unwrap() error { return e.err }

// Stop marks err as final: Do returns it without further attempts.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return stopError{err: err}
}

// policy is the resolved set of options.
type policy struct {
	attempts int
	initial  time.Duration
	max      time.Duration
	factor   float64
	jitter   float64

	// shouldRetry nil means every error except context cancellation.
	shouldRetry func(error) bool
	onRetry     func(attempt int, err error, wait time.Duration)
}

// Option adjusts a Retrier.
type Option func(*policy)

// WithMaxAttempts caps the number of calls, the first one included.
func WithMaxAttempts(n int) Option {
	return func(p *policy) {
		if n > 0 {
			p.attempts = n
		}
	}
}

// WithInitialDelay sets the wait before the second attempt.
func WithInitialDelay(d time.Duration) Option {
	return func(p *policy) {
		if d > 0 {
			p.initial = d
		}
	}
}

// WithMaxDelay caps a single wait.
func WithMaxDelay(d time.Duration) Option {
	return func(p *policy) {
		if d > 0 {
			p.max = d
		}
	}
}

// WithMultiplier sets the growth factor between waits (>= 1).
func WithMultiplier(m float64) Option {
	return func(p *policy) {
		if m >= 1 {
			p.factor = m
		}
	}
}

// WithJitter spreads each wait by up to ±j of its length, j in [0, 1].
func WithJitter(j float64) Option {
	return func(p *policy) {
		if j >= 0 && j <= 1 {
			p.jitter = j
		}
	}
}

// WithRetryIf restricts retries to errors accepted by fn.
func WithRetryIf(fn func(error) bool) Option {
	return func(p *policy) { p.shouldRetry = fn }
}

// WithOnRetry registers a hook called before every wait.
func WithOnRetry(fn func(attempt int, err error, wait time.Duration)) Option {
	return func(p *policy) { p.onRetry = fn }
}

// Retrier runs an operation until it succeeds, fails for good or runs out
// of attempts.
type Retrier struct {
	p policy
}

// New builds a Retrier: 3 attempts, 100ms doubling up to 30s, 10% jitter.
func New(opts ...Option) *Retrier {
	p := policy{
		attempts: 3,
		initial:  100 * time.Millisecond,
		max:      30 * time.Second,
		factor:   2,
		jitter:   0.1,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return &Retrier{p: p}
}

// DatabaseRetrier is tuned for short storage round trips.
func DatabaseRetrier(opts ...Option) *Retrier {
	return New(append([]Option{
		WithInitialDelay(50 * time.Millisecond),
		WithMaxDelay(time.Second),
		WithJitter(0.05),
	}, opts...)...)
}

// JobRetrier is tuned for maintenance jobs that take seconds to minutes.
func JobRetrier(opts ...Option) *Retrier {
	return New(append([]Option{
		WithInitialDelay(time.Second),
		WithMaxDelay(15 * time.Second),
		WithMultiplier(3),
		WithJitter(0.2),
	}, opts...)...)
}

// MaxAttempts reports the attempt limit.
func (r *Retrier) MaxAttempts() int {
	return r.p.attempts
}

// Do calls op until it returns nil. It gives up on errors wrapped with Stop,
// on errors the policy does not retry, when attempts run out and when ctx
// ends. The last error from op is returned unwrapped from Stop.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return last
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		var stop stopError
		if errors.As(err, &stop) {
			return stop.err
		}
		last = err
		if attempt >= r.p.attempts || !r.retryable(err) {
			return err
		}

		wait := r.backoff(attempt)
		if r.p.onRetry != nil {
			r.p.onRetry(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return last
		case <-timer.C:
		}
	}
}

func (r *Retrier) retryable(err error) bool {
	if r.p.shouldRetry != nil {
		return r.p.shouldRetry(err)
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// backoff returns the wait after the given failed attempt.
func (r *Retrier) backoff(attempt int) time.Duration {
	wait := float64(r.p.initial)
	for i := 1; i < attempt && wait < float64(r.p.max); i++ {
		wait *= r.p.factor
	}
	wait = min(wait, float64(r.p.max))
	if r.p.jitter > 0 {
		wait += wait * r.p.jitter * (2*rand.Float64() - 1)
	}
	return time.Duration(max(wait, 0))
}

// Value runs op through r and returns its result.
func Value[T any](ctx context.Context, r *Retrier, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err == nil {
			out = v
		}
		return err
	})
	return out, err
}
