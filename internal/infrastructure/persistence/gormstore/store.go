// Package gormstore implements the storage contract with gorm. It runs on the
// postgres dialect in deployments that already standardize on gorm and on the
// sqlite dialect for single-node runs and tests.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/coursehub/gamification/internal/domain/achievement"
	"github.com/coursehub/gamification/internal/domain/activity"
	"github.com/coursehub/gamification/internal/domain/leaderboard"
	"github.com/coursehub/gamification/internal/domain/shared"
	"github.com/coursehub/gamification/internal/domain/stats"
	"github.com/coursehub/gamification/internal/domain/store"
	"github.com/coursehub/gamification/internal/domain/streak"
	"github.com/coursehub/gamification/pkg/timeutil"
)

// Supported dialects.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// Config selects the dialect and connection.
type Config struct {
	Dialect      string
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	LogQueries   bool
}

// Open connects with the configured dialect. Driver errors are translated to
// gorm.ErrDuplicatedKey and friends.
func Open(cfg Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Dialect {
	case DialectPostgres:
		dialector = postgres.Open(cfg.DSN)
	case DialectSQLite:
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("gormstore: unsupported dialect %q", cfg.Dialect)
	}

	logMode := gormlogger.Silent
	if cfg.LogQueries {
		logMode = gormlogger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(logMode),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("gormstore: open %s: %w", cfg.Dialect, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gormstore: pool: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	return db, nil
}

// Migrate creates or updates every table.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(models()...); err != nil {
		return fmt.Errorf("gormstore: migrate: %w", err)
	}
	return nil
}

// Store implements store.Store over a *gorm.DB.
type Store struct {
	db    *gorm.DB
	clock timeutil.Clock
	repos
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for row timestamps.
func WithClock(c timeutil.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// New wraps an open database.
func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{db: db, clock: timeutil.NewSystemClock(time.UTC)}
	for _, opt := range opts {
		opt(s)
	}
	s.repos = s.bind(db)
	return s
}

var _ store.Store = (*Store)(nil)

func (s *Store) bind(db *gorm.DB) repos {
	return repos{
		activities:   &activityRepo{db: db, clock: s.clock},
		stats:        &statsRepo{db: db, clock: s.clock},
		streaks:      &streakRepo{db: db, clock: s.clock},
		achievements: &achievementRepo{db: db, clock: s.clock},
		leaderboards: &leaderboardRepo{db: db},
	}
}

// WithinTx implements store.Store.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Repositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r := s.bind(tx)
		return fn(&r)
	})
}

// Ping implements store.Store.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close implements store.Store.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

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

func isPostgres(db *gorm.DB) bool { return db.Dialector.Name() == DialectPostgres }

// mapError converts gorm errors into domain errors.
func mapError(domain, op string, err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound) && notFound != nil:
		return notFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return shared.WrapError(domain, op, shared.ErrAlreadyExists, "row already exists", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return shared.StorageError(domain, op, err)
	}
}

func typeStrings(types []activity.Type) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}
