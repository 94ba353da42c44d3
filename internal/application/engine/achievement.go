package engine

import (
	"context"
	"fmt"

	"github.com/coursehub/gamification/internal/domain/achievement"
	"github.com/coursehub/gamification/internal/domain/activity"
	"github.com/coursehub/gamification/internal/domain/shared"
	"github.com/coursehub/gamification/internal/domain/store"
	"github.com/coursehub/gamification/pkg/logger"
	"github.com/coursehub/gamification/pkg/timeutil"
)

// AchievementEngine evaluates the catalog against user progress and grants
// newly unlocked achievements.
type AchievementEngine struct {
	store store.Store
	stats *StatsEngine
	clock timeutil.Clock
	log   *logger.Logger
}

// NewAchievementEngine creates an AchievementEngine. Award points go through statsEngine.
func NewAchievementEngine(st store.Store, statsEngine *StatsEngine, clock timeutil.Clock, log *logger.Logger) *AchievementEngine {
	if log == nil {
		log = logger.Nop()
	}
	return &AchievementEngine{
		store: st,
		stats: statsEngine,
		clock: clock,
		log:   log.With(logger.Component("achievement_engine")),
	}
}

// CheckAndAward grants every unearned achievement the user now satisfies. All
// grants of one call and their point awards commit together or not at all.
// A user without stats gets nothing.
func (e *AchievementEngine) CheckAndAward(ctx context.Context, userID string) ([]achievement.Granted, error) {
	if userID == "" {
		return nil, shared.WrapError("achievement", "CheckAndAward", shared.ErrInvalidID, "user id is required", nil)
	}

	granted := make([]achievement.Granted, 0)
	err := e.store.WithinTx(ctx, func(tx store.Repositories) error {
		granted = granted[:0]

		progress, ok, err := e.progress(ctx, tx, userID)
		if err != nil || !ok {
			return err
		}

		catalog, err := tx.Achievements().Catalog(ctx)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		earned, err := tx.Achievements().EarnedIDs(ctx, userID)
		if err != nil {
			return fmt.Errorf("load earned achievements: %w", err)
		}
		candidates := achievement.Unearned(catalog, earned)
		if len(candidates) == 0 {
			return nil
		}

		if achievement.NeedsStreak(candidates) {
			s, err := tx.Streaks().Get(ctx, userID)
			switch {
			case shared.IsNotFound(err):
			case err != nil:
				return fmt.Errorf("load streak: %w", err)
			default:
				progress.HasStreak = true
				progress.CurrentStreak = s.CurrentStreak
			}
		}

		now := e.clock.Now()
		for _, a := range candidates {
			ok, err := a.IsSatisfied(progress)
			if err != nil {
				return fmt.Errorf("evaluate achievement %s: %w", a.ID, err)
			}
			if !ok {
				continue
			}

			_, inserted, err := tx.Achievements().Grant(ctx, userID, a.ID, now)
			if err != nil {
				return fmt.Errorf("grant achievement %s: %w", a.ID, err)
			}
			if !inserted {
				continue
			}
			if _, err := e.stats.AddPoints(ctx, tx, userID, a.PointsAwarded, activity.TypeEarnAchievement, a.ID); err != nil {
				return fmt.Errorf("award achievement points: %w", err)
			}
			granted = append(granted, achievement.GrantedFrom(a))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, g := range granted {
		e.log.Info("achievement granted",
			logger.UserID(userID),
			logger.AchievementID(g.ID),
			logger.Points(g.PointsAwarded),
		)
	}
	return granted, nil
}

func (e *AchievementEngine) progress(ctx context.Context, tx store.Repositories, userID string) (achievement.Progress, bool, error) {
	s, err := tx.Stats().Get(ctx, userID)
	if shared.IsNotFound(err) {
		return achievement.Progress{}, false, nil
	}
	if err != nil {
		return achievement.Progress{}, false, fmt.Errorf("load stats: %w", err)
	}
	return achievement.Progress{
		LessonsCompleted: s.LessonsCompleted,
		CoursesCompleted: s.CoursesCompleted,
		TotalTimeSpent:   s.TotalTimeSpent,
	}, true, nil
}

// Unnotified returns the user's grants not yet shown and marks them shown in the
// same transaction.
func (e *AchievementEngine) Unnotified(ctx context.Context, userID string) ([]*achievement.Earned, error) {
	var out []*achievement.Earned
	err := e.store.WithinTx(ctx, func(tx store.Repositories) error {
		list, err := tx.Achievements().ListUnnotified(ctx, userID)
		if err != nil {
			return fmt.Errorf("list unnotified: %w", err)
		}
		if len(list) == 0 {
			out = list
			return nil
		}
		ids := make([]string, len(list))
		for i, ea := range list {
			ids[i] = ea.ID
			ea.Notified = true
		}
		if _, err := tx.Achievements().MarkNotified(ctx, userID, ids); err != nil {
			return fmt.Errorf("mark notified: %w", err)
		}
		out = list
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Catalog returns every achievement.
func (e *AchievementEngine) Catalog(ctx context.Context) ([]*achievement.Achievement, error) {
	list, err := e.store.Achievements().Catalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return list, nil
}

// UserAchievements returns the user's grants, newest first.
func (e *AchievementEngine) UserAchievements(ctx context.Context, userID string) ([]*achievement.Earned, error) {
	list, err := e.store.Achievements().ListEarned(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list earned: %w", err)
	}
	return list, nil
}

// Create validates and stores a new catalog entry.
func (e *AchievementEngine) Create(ctx context.Context, a *achievement.Achievement) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if err := e.store.Achievements().Create(ctx, a); err != nil {
		return fmt.Errorf("create achievement: %w", err)
	}
	e.log.Info("achievement created", logger.AchievementID(a.ID), logger.String("type", a.Type.String()))
	return nil
}
