package engine

import (
	"context"
	"fmt"

	"github.com/coursehub/gamification/internal/domain/activity"
	"github.com/coursehub/gamification/internal/domain/shared"
	"github.com/coursehub/gamification/internal/domain/stats"
	"github.com/coursehub/gamification/internal/domain/store"
	"github.com/coursehub/gamification/pkg/logger"
)

// StatsEngine maintains the per-user counters and the point ledger.
type StatsEngine struct {
	store store.Store
	log   *logger.Logger
}

// NewStatsEngine creates a StatsEngine.
func NewStatsEngine(st store.Store, log *logger.Logger) *StatsEngine {
	if log == nil {
		log = logger.Nop()
	}
	return &StatsEngine{store: st, log: log.With(logger.Component("stats_engine"))}
}

// AddPoints appends a ledger entry and adds points to the total, weekly and
// monthly buckets as one unit. It returns the id of the ledger entry.
func (e *StatsEngine) AddPoints(ctx context.Context, tx store.Repositories, userID string, points int, t activity.Type, entityID string) (string, error) {
	entry, err := activity.NewEntry(userID, t, entityID, points)
	if err != nil {
		return "", err
	}

	var entryID string
	err = within(ctx, e.store, tx, func(tx store.Repositories) error {
		id, err := tx.Activities().Append(ctx, entry)
		if err != nil {
			return fmt.Errorf("append ledger entry: %w", err)
		}
		if err := tx.Stats().Increment(ctx, userID, stats.PointDeltas(points)...); err != nil {
			return fmt.Errorf("increment points: %w", err)
		}
		entryID = id
		return nil
	})
	if err != nil {
		return "", err
	}

	e.log.Debug("points added",
		logger.UserID(userID),
		logger.ActivityType(t.String()),
		logger.EntityID(entityID),
		logger.Points(points),
	)
	return entryID, nil
}

// IncrementLessonsCompleted adds one completed lesson.
func (e *StatsEngine) IncrementLessonsCompleted(ctx context.Context, tx store.Repositories, userID string) error {
	return e.increment(ctx, tx, userID, stats.FieldLessonsCompleted, 1)
}

// IncrementCoursesCompleted adds one completed course.
func (e *StatsEngine) IncrementCoursesCompleted(ctx context.Context, tx store.Repositories, userID string) error {
	return e.increment(ctx, tx, userID, stats.FieldCoursesCompleted, 1)
}

// AddTimeSpent adds seconds of learning time.
func (e *StatsEngine) AddTimeSpent(ctx context.Context, tx store.Repositories, userID string, seconds int64) error {
	return e.increment(ctx, tx, userID, stats.FieldTotalTimeSpent, seconds)
}

func (e *StatsEngine) increment(ctx context.Context, tx store.Repositories, userID string, field stats.Field, delta int64) error {
	if err := repos(e.store, tx).Stats().Increment(ctx, userID, stats.FieldDelta{Field: field, Delta: delta}); err != nil {
		return fmt.Errorf("increment %s: %w", field, err)
	}
	return nil
}

// GetUserStats returns the user's counters with rank = 1 + users with strictly
// more total points. A user without a row yields nil and no error.
func (e *StatsEngine) GetUserStats(ctx context.Context, userID string) (*stats.UserStats, error) {
	if userID == "" {
		return nil, stats.ErrInvalidUserID
	}
	s, err := e.store.Stats().Get(ctx, userID)
	if shared.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user stats: %w", err)
	}

	ahead, err := e.store.Stats().CountAbove(ctx, s.TotalPoints)
	if err != nil {
		return nil, fmt.Errorf("count users ahead: %w", err)
	}
	rank := stats.CompetitionRank(ahead)
	s.Rank = &rank
	return s, nil
}

// ResetWeeklyPoints zeroes the weekly bucket for every user.
func (e *StatsEngine) ResetWeeklyPoints(ctx context.Context) (int64, error) {
	return e.reset(ctx, stats.FieldWeeklyPoints)
}

// ResetMonthlyPoints zeroes the monthly bucket for every user.
func (e *StatsEngine) ResetMonthlyPoints(ctx context.Context) (int64, error) {
	return e.reset(ctx, stats.FieldMonthlyPoints)
}

func (e *StatsEngine) reset(ctx context.Context, field stats.Field) (int64, error) {
	n, err := e.store.Stats().Reset(ctx, field)
	if err != nil {
		return 0, fmt.Errorf("reset %s: %w", field, err)
	}
	e.log.Info("points bucket reset", logger.String("field", string(field)), logger.RowsAffected(n))
	return n, nil
}

// UpdateRanks stores the sequential leaderboard position of every user.
func (e *StatsEngine) UpdateRanks(ctx context.Context) (int64, error) {
	n, err := e.store.Stats().UpdateRanks(ctx)
	if err != nil {
		return 0, fmt.Errorf("update ranks: %w", err)
	}
	e.log.Info("ranks updated", logger.RowsAffected(n))
	return n, nil
}
