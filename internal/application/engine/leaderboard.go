package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/coursehub/gamification/internal/domain/activity"
	"github.com/coursehub/gamification/internal/domain/leaderboard"
	"github.com/coursehub/gamification/internal/domain/shared"
	"github.com/coursehub/gamification/internal/domain/store"
	"github.com/coursehub/gamification/pkg/logger"
	"github.com/coursehub/gamification/pkg/timeutil"
)

const (
	// DefaultCacheTTL bounds how stale a cached global, weekly or monthly page
	// can be after live point changes. Resets drop the cache at once.
	DefaultCacheTTL = 5 * time.Minute

	// CounterWarmupDepth is how many top entries of each counter board the
	// warmup job caches.
	CounterWarmupDepth = 100

	// CourseWarmupDepth is the same for every course board.
	CourseWarmupDepth = 50

	warmupParallelism = 4
)

// LeaderboardOption configures a LeaderboardEngine.
type LeaderboardOption func(*LeaderboardEngine)

// WithCache enables the read-through page cache.
func WithCache(c leaderboard.Cache, ttl time.Duration) LeaderboardOption {
	return func(e *LeaderboardEngine) {
		e.cache = c
		if ttl > 0 {
			e.ttl = ttl
		}
	}
}

// LeaderboardEngine computes ranked pages for every scope.
type LeaderboardEngine struct {
	store store.Store
	cache leaderboard.Cache
	ttl   time.Duration
	clock timeutil.Clock
	log   *logger.Logger
}

// NewLeaderboardEngine creates a LeaderboardEngine without a cache unless WithCache is given.
func NewLeaderboardEngine(st store.Store, clock timeutil.Clock, log *logger.Logger, opts ...LeaderboardOption) *LeaderboardEngine {
	if log == nil {
		log = logger.Nop()
	}
	e := &LeaderboardEngine{
		store: st,
		ttl:   DefaultCacheTTL,
		clock: clock,
		log:   log.With(logger.Component("leaderboard_engine")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Get returns one page. Cache failures fall back to computing from the store.
func (e *LeaderboardEngine) Get(ctx context.Context, q leaderboard.Query) (*leaderboard.Board, error) {
	if b, ok := e.fromCache(ctx, q); ok {
		return b, nil
	}
	b, err := e.compute(ctx, q)
	if err != nil {
		return nil, err
	}
	e.storePage(ctx, q, b)
	return b, nil
}

// depth is how many rows the warm-up keeps for a scope.
func depth(scope leaderboard.Scope) int {
	if scope == leaderboard.ScopeCourse {
		return CourseWarmupDepth
	}
	return CounterWarmupDepth
}

func (e *LeaderboardEngine) fromCache(ctx context.Context, q leaderboard.Query) (*leaderboard.Board, bool) {
	if e.cache == nil {
		return nil, false
	}
	if b, ok := e.cacheGet(ctx, q); ok {
		return b, true
	}

	deep := leaderboard.Query{Scope: q.Scope, CourseID: q.CourseID, Page: shared.Page{Limit: depth(q.Scope)}}
	if deep.Page == q.Page || q.Page.Offset+q.Page.Limit > deep.Page.Limit {
		return nil, false
	}
	b, ok := e.cacheGet(ctx, deep)
	if !ok {
		return nil, false
	}
	return b.Window(q.Page)
}

func (e *LeaderboardEngine) cacheGet(ctx context.Context, q leaderboard.Query) (*leaderboard.Board, bool) {
	b, err := e.cache.Get(ctx, q)
	if err == nil {
		return b, true
	}
	if !errors.Is(err, leaderboard.ErrCacheMiss) {
		e.log.Warn("leaderboard cache read failed", logger.Scope(q.Scope.String()), logger.Err(err))
	}
	return nil, false
}

func (e *LeaderboardEngine) storePage(ctx context.Context, q leaderboard.Query, b *leaderboard.Board) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Set(ctx, q, b, e.ttl); err != nil {
		e.log.Warn("leaderboard cache write failed", logger.Scope(q.Scope.String()), logger.Err(err))
	}
}

func (e *LeaderboardEngine) compute(ctx context.Context, q leaderboard.Query) (*leaderboard.Board, error) {
	var (
		rows []leaderboard.Row
		err  error
	)
	lb := e.store.Leaderboards()
	if q.Scope == leaderboard.ScopeCourse {
		rows, err = lb.TopByCourse(ctx, q.CourseID, activity.CourseScopedTypes, q.Page.Limit, q.Page.Offset)
	} else {
		rows, err = lb.TopByCounter(ctx, q.Scope.Field(), q.Page.Limit, q.Page.Offset)
	}
	if err != nil {
		return nil, fmt.Errorf("compute %s leaderboard: %w", q.Scope, err)
	}
	return leaderboard.NewBoard(q, rows, e.clock.Now()), nil
}

// Invalidate drops cached pages of a scope.
func (e *LeaderboardEngine) Invalidate(ctx context.Context, scope leaderboard.Scope, courseID string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Invalidate(ctx, scope, courseID); err != nil {
		e.log.Warn("leaderboard cache invalidation failed", logger.Scope(scope.String()), logger.Err(err))
	}
}

// WarmupResult summarizes one warm-up run.
type WarmupResult struct {
	Boards  int
	Courses int
}

// Warmup recomputes the global, weekly and monthly boards and every course board
// and stores them in the cache.
func (e *LeaderboardEngine) Warmup(ctx context.Context) (WarmupResult, error) {
	start := time.Now()
	courses, err := e.store.Leaderboards().CourseIDs(ctx, activity.CourseScopedTypes)
	if err != nil {
		return WarmupResult{}, fmt.Errorf("list courses: %w", err)
	}

	queries := make([]leaderboard.Query, 0, len(leaderboard.CounterScopes)+len(courses))
	for _, scope := range leaderboard.CounterScopes {
		queries = append(queries, leaderboard.Query{Scope: scope, Page: shared.Page{Limit: CounterWarmupDepth}})
	}
	for _, id := range courses {
		queries = append(queries, leaderboard.Query{Scope: leaderboard.ScopeCourse, CourseID: id, Page: shared.Page{Limit: CourseWarmupDepth}})
	}

	var boards atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmupParallelism)
	for _, q := range queries {
		q := q
		g.Go(func() error {
			b, err := e.compute(gctx, q)
			if err != nil {
				return err
			}
			e.storePage(gctx, q, b)
			boards.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return WarmupResult{}, err
	}

	res := WarmupResult{Boards: int(boards.Load()), Courses: len(courses)}
	e.log.Info("leaderboards warmed up",
		logger.Int("boards", res.Boards),
		logger.Int("courses", res.Courses),
		logger.Latency(time.Since(start)),
	)
	return res, nil
}
