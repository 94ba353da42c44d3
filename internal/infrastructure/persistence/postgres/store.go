package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/coursehub/gamification/internal/domain/achievement"
	"github.com/coursehub/gamification/internal/domain/activity"
	"github.com/coursehub/gamification/internal/domain/leaderboard"
	"github.com/coursehub/gamification/internal/domain/shared"
	"github.com/coursehub/gamification/internal/domain/stats"
	"github.com/coursehub/gamification/internal/domain/store"
	"github.com/coursehub/gamification/internal/domain/streak"
	"github.com/coursehub/gamification/pkg/timeutil"
)

// Store implements store.Store over a pgx pool.
type Store struct {
	conn  *Connection
	clock timeutil.Clock
	opts  TxOptions
	repos
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for row timestamps.
func WithClock(c timeutil.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithTxOptions overrides the isolation level of WithinTx.
func WithTxOptions(opts TxOptions) Option {
	return func(s *Store) { s.opts = opts }
}

// NewStore wraps an open connection.
func NewStore(conn *Connection, opts ...Option) *Store {
	s := &Store{
		conn:  conn,
		clock: timeutil.NewSystemClock(time.UTC),
		opts:  DefaultTxOptions(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.repos = s.bind(conn.Pool())
	return s
}

var _ store.Store = (*Store)(nil)

func (s *Store) bind(q Querier) repos {
	return repos{
		activities:   &ActivityRepository{q: q, clock: s.clock},
		stats:        &StatsRepository{q: q, clock: s.clock},
		streaks:      &StreakRepository{q: q, clock: s.clock},
		achievements: &AchievementRepository{q: q, clock: s.clock},
		leaderboards: &LeaderboardRepository{q: q},
	}
}

// WithinTx implements store.Store.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Repositories) error) error {
	return s.conn.WithTx(ctx, s.opts, func(tx pgx.Tx) error {
		r := s.bind(tx)
		return fn(&r)
	})
}

// Ping implements store.Store.
func (s *Store) Ping(ctx context.Context) error { return s.conn.Ping(ctx) }

// Close implements store.Store.
func (s *Store) Close() error {
	s.conn.Close()
	return nil
}

// Connection returns the underlying connection for health reporting.
func (s *Store) Connection() *Connection { return s.conn }

type repos struct {
	activities   *ActivityRepository
	stats        *StatsRepository
	streaks      *StreakRepository
	achievements *AchievementRepository
	leaderboards *LeaderboardRepository
}

func (r *repos) Activities() activity.Repository     { return r.activities }
func (r *repos) Stats() stats.Repository              { return r.stats }
func (r *repos) Streaks() streak.Repository           { return r.streaks }
func (r *repos) Achievements() achievement.Repository { return r.achievements }
func (r *repos) Leaderboards() leaderboard.Repository { return r.leaderboards }

func newID() string { return uuid.NewString() }

// mapError converts driver errors into domain errors. notFound is returned for
// pgx.ErrNoRows when non-nil.
func mapError(domain, op string, err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case IsNoRows(err) && notFound != nil:
		return notFound
	case IsUniqueViolation(err):
		return shared.WrapError(domain, op, shared.ErrAlreadyExists, "row already exists", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return shared.StorageError(domain, op, err)
	}
}

// typeStrings converts activity types to a text[] argument.
func typeStrings(types []activity.Type) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}
