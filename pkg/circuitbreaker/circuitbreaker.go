// Package circuitbreaker keeps an optional collaborator (the leaderboard
// cache) from adding latency to every request while it is down.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State of a breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

var (
	// ErrCircuitOpen is returned without calling the protected function.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned while the half-open probe quota is used up.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Stats are cumulative since creation or the last Reset.
type Stats struct {
	Passed   int // calls that ran and did not count as failures
	Failed   int
	Rejected int
}

type settings struct {
	failures  int // consecutive failures that open a closed breaker
	successes int // consecutive successes that close a half-open breaker
	cooldown  time.Duration
	probes    int // concurrent calls allowed while half-open

	isFailure     func(error) bool
	onStateChange func(name string, from, to State)
	now           func() time.Time
}

// Option tunes a breaker.
type Option func(*settings)

func WithFailureThreshold(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.failures = n
		}
	}
}

func WithSuccessThreshold(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.successes = n
		}
	}
}

// WithTimeout sets how long the breaker stays open before probing.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.cooldown = d
		}
	}
}

func WithMaxHalfOpenRequests(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.probes = n
		}
	}
}

func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(s *settings) { s.onStateChange = fn }
}

// WithIsFailure decides which errors count against the breaker. Errors it
// rejects are returned to the caller but recorded as passes.
func WithIsFailure(fn func(error) bool) Option {
	return func(s *settings) { s.isFailure = fn }
}

func WithNow(fn func() time.Time) Option {
	return func(s *settings) {
		if fn != nil {
			s.now = fn
		}
	}
}

// CircuitBreaker guards calls to one dependency.
type CircuitBreaker struct {
	name string
	cfg  settings

	mu       sync.Mutex
	state    State
	streak   int // consecutive failures when closed, successes when half-open
	inflight int // half-open probes running
	openedAt time.Time
	stats    Stats
}

// New creates a closed breaker: opens after 5 failures, probes after 30s,
// closes after 2 successful probes.
func New(name string, opts ...Option) *CircuitBreaker {
	cfg := settings{failures: 5, successes: 2, cooldown: 30 * time.Second, probes: 1, now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &CircuitBreaker{name: name, cfg: cfg}
}

// CacheBreaker returns the breaker used in front of the leaderboard cache.
// It opens quickly and probes again after a short pause.
func CacheBreaker(isFailure func(error) bool, onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New("leaderboard-cache",
		WithFailureThreshold(3),
		WithSuccessThreshold(1),
		WithTimeout(15*time.Second),
		WithIsFailure(isFailure),
		WithOnStateChange(onStateChange),
	)
}

// Execute runs fn unless the breaker is open and records the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	cb.record(probe, err)
	return err
}

func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.cfg.now().Sub(cb.openedAt) >= cb.cfg.cooldown {
		cb.transition(StateHalfOpen)
	}
	switch cb.state {
	case StateClosed:
		return false, nil
	case StateHalfOpen:
		if cb.inflight < cb.cfg.probes {
			cb.inflight++
			return true, nil
		}
		cb.stats.Rejected++
		return false, ErrTooManyRequests
	default:
		cb.stats.Rejected++
		return false, ErrCircuitOpen
	}
}

func (cb *CircuitBreaker) record(probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe && cb.inflight > 0 {
		cb.inflight--
	}
	failed := err != nil && (cb.cfg.isFailure == nil || cb.cfg.isFailure(err))
	if failed {
		cb.stats.Failed++
	} else {
		cb.stats.Passed++
	}

	switch cb.state {
	case StateClosed:
		if !failed {
			cb.streak = 0
			return
		}
		if cb.streak++; cb.streak >= cb.cfg.failures {
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		if failed {
			cb.transition(StateOpen)
			return
		}
		if cb.streak++; cb.streak >= cb.cfg.successes {
			cb.transition(StateClosed)
		}
	}
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.streak = 0
	cb.inflight = 0
	if to == StateOpen {
		cb.openedAt = cb.cfg.now()
	}
	if cb.cfg.onStateChange != nil {
		cb.cfg.onStateChange(cb.name, from, to)
	}
}

func (cb *CircuitBreaker) Name() string { return cb.name }

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stats
}

// Reset closes the breaker and clears its stats.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.streak = 0
	cb.inflight = 0
	cb.stats = Stats{}
}
