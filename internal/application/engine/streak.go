package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/coursehub/gamification/internal/domain/shared"
	"github.com/coursehub/gamification/internal/domain/store"
	"github.com/coursehub/gamification/internal/domain/streak"
	"github.com/coursehub/gamification/pkg/logger"
	"github.com/coursehub/gamification/pkg/timeutil"
)

// Page sizes for TopStreaks: the default when the caller passes none, and the
// upper bound a caller may request.
const (
	DefaultTopStreaks = 10
	MaxTopStreaks     = 100
)

// StreakEngine tracks consecutive active days per user.
type StreakEngine struct {
	store store.Store
	clock timeutil.Clock
	log   *logger.Logger
}

// NewStreakEngine creates a StreakEngine. Calendar days are taken from clock.
func NewStreakEngine(st store.Store, clock timeutil.Clock, log *logger.Logger) *StreakEngine {
	if log == nil {
		log = logger.Nop()
	}
	return &StreakEngine{store: st, clock: clock, log: log.With(logger.Component("streak_engine"))}
}

// Today returns the current calendar day in the configured location.
func (e *StreakEngine) Today() time.Time { return timeutil.Today(e.clock) }

// RecordActivity counts today for the user and reports whether the streak changed.
// A second call on the same day changes nothing.
func (e *StreakEngine) RecordActivity(ctx context.Context, tx store.Repositories, userID string) (*streak.Streak, bool, error) {
	if userID == "" {
		return nil, false, streak.ErrInvalidUserID
	}
	s, updated, err := repos(e.store, tx).Streaks().Record(ctx, userID, e.Today())
	if err != nil {
		return nil, false, fmt.Errorf("record streak activity: %w", err)
	}
	if updated {
		e.log.Debug("streak updated",
			logger.UserID(userID),
			logger.Int("current_streak", s.CurrentStreak),
			logger.Int("longest_streak", s.LongestStreak),
		)
	}
	return s, updated, nil
}

// GetUserStreak returns the user's streak, or nil when the user has none.
func (e *StreakEngine) GetUserStreak(ctx context.Context, userID string) (*streak.Streak, error) {
	s, err := e.store.Streaks().Get(ctx, userID)
	if shared.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get streak: %w", err)
	}
	return s, nil
}

// HasActivityToday reports whether today already counts toward the user's streak.
func (e *StreakEngine) HasActivityToday(ctx context.Context, userID string) (bool, error) {
	s, err := e.GetUserStreak(ctx, userID)
	if err != nil || s == nil {
		return false, err
	}
	return s.ActiveToday(e.Today()), nil
}

// CheckAndUpdateAll zeroes every streak whose last activity is neither today nor
// yesterday. The last activity date is kept.
func (e *StreakEngine) CheckAndUpdateAll(ctx context.Context) (int64, error) {
	today := e.Today()
	n, err := e.store.Streaks().ResetLapsed(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("reset lapsed streaks: %w", err)
	}
	e.log.Info("lapsed streaks reset", logger.String("today", timeutil.FormatDate(today)), logger.RowsAffected(n))
	return n, nil
}

// GetTopStreaks returns the longest running streaks.
func (e *StreakEngine) GetTopStreaks(ctx context.Context, limit int) ([]*streak.Streak, error) {
	page, err := shared.NewPage(limit, 0, DefaultTopStreaks, MaxTopStreaks)
	if err != nil {
		return nil, err
	}
	list, err := e.store.Streaks().Top(ctx, page.Limit)
	if err != nil {
		return nil, fmt.Errorf("top streaks: %w", err)
	}
	return list, nil
}
