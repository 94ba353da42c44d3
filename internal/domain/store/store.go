// Package store defines the transactional storage contract the engines run against.
package store

import (
	"context"

	"github.com/coursehub/gamification/internal/domain/achievement"
	"github.com/coursehub/gamification/internal/domain/activity"
	"github.com/coursehub/gamification/internal/domain/leaderboard"
	"github.com/coursehub/gamification/internal/domain/stats"
	"github.com/coursehub/gamification/internal/domain/streak"
)

// Repositories is the set of repositories bound to one connection or transaction.
type Repositories interface {
	Activities() activity.Repository
	Stats() stats.Repository
	Streaks() streak.Repository
	Achievements() achievement.Repository
	Leaderboards() leaderboard.Repository
}

// Store is the storage handle injected into the engines.
type Store interface {
	Repositories

	// WithinTx runs fn with repositories bound to one transaction. The
	// transaction commits when fn returns nil and rolls back otherwise; partial
	// writes are never visible to other callers.
	WithinTx(ctx context.Context, fn func(tx Repositories) error) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying resources.
	Close() error
}
