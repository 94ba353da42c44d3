// Package memory implements the storage contract in process memory.
// It backs the engine tests and single-process local runs; state is lost on exit.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coursehub/gamification/internal/domain/achievement"
	"github.com/coursehub/gamification/internal/domain/activity"
	"github.com/coursehub/gamification/internal/domain/leaderboard"
	"github.com/coursehub/gamification/internal/domain/stats"
	"github.com/coursehub/gamification/internal/domain/store"
	"github.com/coursehub/gamification/internal/domain/streak"
	"github.com/coursehub/gamification/pkg/timeutil"
)

type grantKey struct {
	userID        string
	achievementID string
}

type tables struct {
	entries      []*activity.Entry
	stats        map[string]*stats.UserStats
	streaks      map[string]*streak.Streak
	achievements map[string]*achievement.Achievement
	grants       map[grantKey]*achievement.UserAchievement
}

func newTables() *tables {
	return &tables{
		stats:        make(map[string]*stats.UserStats),
		streaks:      make(map[string]*streak.Streak),
		achievements: make(map[string]*achievement.Achievement),
		grants:       make(map[grantKey]*achievement.UserAchievement),
	}
}

// clone deep-copies every row so a failed transaction can be rolled back.
func (t *tables) clone() *tables {
	c := newTables()
	c.entries = make([]*activity.Entry, len(t.entries))
	for i, e := range t.entries {
		cp := *e
		c.entries[i] = &cp
	}
	for k, v := range t.stats {
		cp := *v
		c.stats[k] = &cp
	}
	for k, v := range t.streaks {
		cp := *v
		c.streaks[k] = &cp
	}
	for k, v := range t.achievements {
		cp := *v
		c.achievements[k] = &cp
	}
	for k, v := range t.grants {
		cp := *v
		c.grants[k] = &cp
	}
	return c
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for row timestamps.
func WithClock(c timeutil.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// Store keeps every table behind one mutex. Transactions hold the mutex for
// their whole duration and restore a snapshot on failure.
type Store struct {
	mu    sync.Mutex
	db    *tables
	clock timeutil.Clock
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		db:    newTables(),
		clock: timeutil.NewSystemClock(time.UTC),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ store.Store = (*Store)(nil)

func (s *Store) now() time.Time { return s.clock.Now() }

// run executes fn against the tables, taking the mutex unless the caller
// already holds it inside a transaction.
func (s *Store) run(locked bool, fn func(db *tables) error) error {
	if !locked {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn(s.db)
}

func (s *Store) bind(locked bool) *repos {
	return &repos{
		activities:   &activityRepo{s: s, locked: locked},
		stats:        &statsRepo{s: s, locked: locked},
		streaks:      &streakRepo{s: s, locked: locked},
		achievements: &achievementRepo{s: s, locked: locked},
		leaderboards: &leaderboardRepo{s: s, locked: locked},
	}
}

func (s *Store) Activities() activity.Repository     { return s.bind(false).activities }
func (s *Store) Stats() stats.Repository              { return s.bind(false).stats }
func (s *Store) Streaks() streak.Repository           { return s.bind(false).streaks }
func (s *Store) Achievements() achievement.Repository { return s.bind(false).achievements }
func (s *Store) Leaderboards() leaderboard.Repository { return s.bind(false).leaderboards }

// WithinTx implements store.Store.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Repositories) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.db.clone()
	defer func() {
		if p := recover(); p != nil {
			s.db = snapshot
			panic(p)
		}
		if err != nil {
			s.db = snapshot
		}
	}()

	if err = ctx.Err(); err != nil {
		return err
	}
	return fn(s.bind(true))
}

// Ping implements store.Store.
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// Close implements store.Store.
func (s *Store) Close() error { return nil }

type repos struct {
	activities   *activityRepo
	stats        *statsRepo
	streaks      *streakRepo
	achievements *achievementRepo
	leaderboards *leaderboardRepo
}

func (r *repos) Activities() activity.Repository     { return r.activities }
func (r *repos) Stats() stats.Repository              { return r.stats }
func (r *repos) Streaks() streak.Repository           { return r.streaks }
func (r *repos) Achievements() achievement.Repository { return r.achievements }
func (r *repos) Leaderboards() leaderboard.Repository { return r.leaderboards }

func newID() string { return uuid.NewString() }
