// Package bootstrap wires configuration into a running set of stores, caches,
// engines and use-case handlers. Both cmd/api and cmd/worker build on it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/coursehub/gamification/config"
	"github.com/coursehub/gamification/internal/application/command"
	"github.com/coursehub/gamification/internal/application/engine"
	"github.com/coursehub/gamification/internal/application/query"
	"github.com/coursehub/gamification/internal/domain/store"
	"github.com/coursehub/gamification/internal/infrastructure/persistence/gormstore"
	"github.com/coursehub/gamification/internal/infrastructure/persistence/memory"
	"github.com/coursehub/gamification/internal/infrastructure/persistence/postgres"
	"github.com/coursehub/gamification/internal/infrastructure/persistence/redis"
	"github.com/coursehub/gamification/internal/interface/http/handlers"
	"github.com/coursehub/gamification/pkg/circuitbreaker"
	"github.com/coursehub/gamification/pkg/logger"
	"github.com/coursehub/gamification/pkg/retry"
	"github.com/coursehub/gamification/pkg/timeutil"
)

// Container holds everything a process needs.
type Container struct {
	Config *config.Config
	Logger *logger.Logger
	Clock  timeutil.Clock
	Store  store.Store

	// Cache, Locker and Limiter are nil when Redis is disabled.
	Cache   *redis.Cache
	Locker  *redis.Locker
	Limiter *redis.RateLimiter

	Stats        *engine.StatsEngine
	Streaks      *engine.StreakEngine
	Achievements *engine.AchievementEngine
	Leaderboards *engine.LeaderboardEngine

	App handlers.Application

	closers []func() error
}

// NewLogger builds the process logger from the log section.
func NewLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Output = os.Stdout
	opts.Level = logger.ParseLevel(cfg.Log.Level)
	opts.Format = cfg.Log.Format
	return logger.New(opts).With(
		logger.String("service", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
	)
}

// Build opens the store (running migrations when configured), connects Redis
// when enabled and assembles the engines and handlers. On error everything
// opened so far is closed.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *Container, err error) {
	c := &Container{
		Config: cfg,
		Logger: log,
		Clock:  timeutil.NewSystemClock(cfg.App.Location),
	}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	if c.Store, err = openStore(ctx, cfg.Database, c.Clock, log); err != nil {
		return nil, err
	}
	c.closers = append(c.closers, c.Store.Close)

	var lbOpts []engine.LeaderboardOption
	if cfg.Redis.Enabled {
		cache, err := connectRedis(cfg.Redis)
		if err != nil {
			// Leaderboard reads fall back to the store.
			log.Warn("redis unavailable, leaderboard cache and job lock disabled", logger.Err(err))
		} else {
			c.Cache = cache
			c.closers = append(c.closers, cache.Close)
			c.Locker = redis.NewLocker(cache, cfg.Scheduler.LockTTL)
			c.Limiter = redis.NewRateLimiter(cache)

			breaker := circuitbreaker.CacheBreaker(redis.IsCacheFailure, func(name string, from, to circuitbreaker.State) {
				log.Warn("circuit breaker state changed",
					logger.String("breaker", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()),
				)
			})
			lbCache := redis.NewLeaderboardCache(cache, redis.WithBreaker(breaker))
			lbOpts = append(lbOpts, engine.WithCache(lbCache, cfg.Leaderboard.CacheTTL))
		}
	}

	c.Stats = engine.NewStatsEngine(c.Store, log)
	c.Streaks = engine.NewStreakEngine(c.Store, c.Clock, log)
	c.Achievements = engine.NewAchievementEngine(c.Store, c.Stats, c.Clock, log)
	c.Leaderboards = engine.NewLeaderboardEngine(c.Store, c.Clock, log, lbOpts...)

	c.App = handlers.Application{
		Leaderboard:        query.NewGetLeaderboardHandler(c.Leaderboards),
		UserStats:          query.NewGetUserStatsHandler(c.Stats),
		Streaks:            query.NewStreakHandler(c.Streaks),
		Achievements:       query.NewAchievementHandler(c.Achievements),
		Activity:           query.NewActivityHandler(c.Store.Activities()),
		RecordEvent:        command.NewRecordEventHandler(c.Store, c.Stats, c.Streaks, c.Achievements, c.Clock, log),
		CompleteCourse:     command.NewCompleteCourseHandler(c.Store, c.Stats, c.Streaks, c.Achievements, log),
		CheckAchievements:  command.NewCheckAchievementsHandler(c.Achievements),
		ClaimNotifications: command.NewClaimNotificationsHandler(c.Achievements),
		CreateAchievement:  command.NewCreateAchievementHandler(c.Achievements),
		Maintenance:        command.NewMaintenanceHandler(c.Store, c.Stats, c.Streaks, c.Leaderboards, c.Clock, log),
	}
	return c, nil
}

// HealthChecker returns a checker covering the store and, when connected,
// Redis as an optional dependency.
func (c *Container) HealthChecker() *handlers.CompositeHealthChecker {
	hc := handlers.NewCompositeHealthChecker(c.Config.App.Version)
	hc.AddCheck("database", handlers.PingCheck(c.Store))
	if c.Cache != nil {
		hc.AddOptionalCheck("redis", handlers.PingCheck(c.Cache))
	}
	return hc
}

// Close releases resources in reverse order of acquisition.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// ══════════════════════════════════════════════════════════════════════════════
// STORE SELECTION
// ══════════════════════════════════════════════════════════════════════════════

func openStore(ctx context.Context, cfg config.DatabaseConfig, clock timeutil.Clock, log *logger.Logger) (store.Store, error) {
	log = log.With(logger.Component("store"), logger.String("driver", cfg.Driver))

	switch cfg.Driver {
	case config.DriverMemory:
		log.Warn("using in-process store, data is lost on exit")
		return memory.New(memory.WithClock(clock)), nil

	case config.DriverPgx:
		pgCfg := postgres.DefaultConfig()
		pgCfg.URL = cfg.URL
		pgCfg.MaxConns = int32(cfg.MaxConns)
		pgCfg.MinConns = int32(cfg.MinConns)
		pgCfg.MaxConnLifetime = cfg.ConnMaxLifetime
		pgCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime

		var conn *postgres.Connection
		err := retry.DatabaseRetrier(databaseRetry(log)...).Do(ctx, func(ctx context.Context) (err error) {
			conn, err = postgres.NewConnection(ctx, pgCfg)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if cfg.AutoMigrate {
			if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
				conn.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		log.Info("postgres store ready")
		return postgres.NewStore(conn, postgres.WithClock(clock)), nil

	case config.DriverGorm, config.DriverSQLite:
		gcfg := gormstore.Config{
			Dialect:      gormstore.DialectPostgres,
			DSN:          cfg.URL,
			MaxOpenConns: cfg.MaxConns,
			MaxIdleConns: cfg.MinConns,
			LogQueries:   cfg.LogQueries,
		}
		if cfg.Driver == config.DriverSQLite {
			gcfg.Dialect = gormstore.DialectSQLite
			gcfg.DSN = cfg.SQLitePath
		}
		db, err := gormstore.Open(gcfg)
		if err != nil {
			return nil, err
		}
		st := gormstore.New(db, gormstore.WithClock(clock))
		if cfg.AutoMigrate {
			if err := gormstore.Migrate(ctx, db); err != nil {
				_ = st.Close()
				return nil, err
			}
		}
		log.Info("gorm store ready", logger.String("dialect", gcfg.Dialect))
		return st, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func databaseRetry(log *logger.Logger) []retry.Option {
	return []retry.Option{
		retry.WithMaxAttempts(5),
		retry.WithInitialDelay(500 * time.Millisecond),
		retry.WithMaxDelay(5 * time.Second),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			log.Warn("database not reachable, retrying",
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.Err(err),
			)
		}),
	}
}

func connectRedis(cfg config.RedisConfig) (*redis.Cache, error) {
	rc := redis.DefaultConfig()
	rc.Host = cfg.Host
	rc.Port = cfg.Port
	rc.Password = cfg.Password
	rc.DB = cfg.DB
	if cfg.PoolSize > 0 {
		rc.PoolSize = cfg.PoolSize
	}
	if cfg.KeyPrefix != "" {
		rc.KeyPrefix = cfg.KeyPrefix
	}
	rc.DialTimeout = cfg.DialTimeout
	rc.ReadTimeout = cfg.ReadTimeout
	rc.WriteTimeout = cfg.WriteTimeout
	return redis.NewCache(rc)
}
