package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/coursehub/gamification/internal/domain/leaderboard"
	"github.com/coursehub/gamification/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE
// ══════════════════════════════════════════════════════════════════════════════

const (
	pageKeyPrefix  = "leaderboard:"
	defaultPageTTL = 5 * time.Minute
)

// LeaderboardCache stores finished leaderboard pages as JSON strings.
//
// Key layout: {prefix}leaderboard:{scope}:{courseId|-}:{limit}:{offset}
//
// Invalidation deletes by pattern, so a scope reset drops every page size
// that was cached for it.
type LeaderboardCache struct {
	cache   *Cache
	breaker *circuitbreaker.CircuitBreaker
}

// LeaderboardCacheOption configures a LeaderboardCache.
type LeaderboardCacheOption func(*LeaderboardCache)

// WithBreaker routes every call through cb. While it is open the cache
// reports errors immediately and the engine computes boards from the store.
func WithBreaker(cb *circuitbreaker.CircuitBreaker) LeaderboardCacheOption {
	return func(l *LeaderboardCache) { l.breaker = cb }
}

// NewLeaderboardCache creates a new LeaderboardCache instance.
func NewLeaderboardCache(cache *Cache, opts ...LeaderboardCacheOption) *LeaderboardCache {
	l := &LeaderboardCache{cache: cache}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IsCacheFailure reports whether err should trip the breaker. Misses don't.
func IsCacheFailure(err error) bool {
	return err != nil && !errors.Is(err, leaderboard.ErrCacheMiss) && !errors.Is(err, ErrCacheMiss)
}

func (l *LeaderboardCache) do(ctx context.Context, fn func(context.Context) error) error {
	if l.breaker == nil {
		return fn(ctx)
	}
	return l.breaker.Execute(ctx, fn)
}

var _ leaderboard.Cache = (*LeaderboardCache)(nil)

func courseSegment(courseID string) string {
	if courseID == "" {
		return "-"
	}
	return courseID
}

// PageKey returns the key of one cached page.
func (l *LeaderboardCache) PageKey(q leaderboard.Query) string {
	return l.cache.Key(pageKeyPrefix,
		q.Scope.String(), ":",
		courseSegment(q.CourseID), ":",
		strconv.Itoa(q.Page.Limit), ":",
		strconv.Itoa(q.Page.Offset))
}

// Get returns the cached page or leaderboard.ErrCacheMiss.
func (l *LeaderboardCache) Get(ctx context.Context, q leaderboard.Query) (*leaderboard.Board, error) {
	var board leaderboard.Board
	err := l.do(ctx, func(ctx context.Context) error {
		return l.cache.Get(ctx, l.PageKey(q), &board)
	})
	if errors.Is(err, ErrCacheMiss) {
		return nil, leaderboard.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("leaderboard_cache: get: %w", err)
	}
	return &board, nil
}

// Set stores the page with the given TTL.
func (l *LeaderboardCache) Set(ctx context.Context, q leaderboard.Query, board *leaderboard.Board, ttl time.Duration) error {
	if board == nil {
		return ErrCacheNilValue
	}
	if ttl <= 0 {
		ttl = defaultPageTTL
	}
	err := l.do(ctx, func(ctx context.Context) error {
		return l.cache.Set(ctx, l.PageKey(q), board, ttl)
	})
	if err != nil {
		return fmt.Errorf("leaderboard_cache: set: %w", err)
	}
	return nil
}

// Invalidate deletes every page of the scope. For the course scope an empty
// courseID drops all courses.
func (l *LeaderboardCache) Invalidate(ctx context.Context, scope leaderboard.Scope, courseID string) error {
	course := "*"
	if courseID != "" || scope != leaderboard.ScopeCourse {
		course = courseSegment(courseID)
	}
	pattern := l.cache.Key(pageKeyPrefix, scope.String(), ":", course, ":*")
	err := l.do(ctx, func(ctx context.Context) error {
		_, err := l.cache.DeleteByPattern(ctx, pattern)
		return err
	})
	if err != nil {
		return fmt.Errorf("leaderboard_cache: invalidate %s: %w", scope, err)
	}
	return nil
}
