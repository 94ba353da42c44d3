// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"

	"github.com/coursehub/gamification/internal/application/engine"
	"github.com/coursehub/gamification/internal/domain/achievement"
	"github.com/coursehub/gamification/internal/domain/activity"
	"github.com/coursehub/gamification/internal/domain/store"
	"github.com/coursehub/gamification/internal/domain/streak"
	"github.com/coursehub/gamification/pkg/logger"
	"github.com/coursehub/gamification/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD EVENT COMMAND
// Entry point for learning events reported by the LMS: awards points, bumps the
// matching counters and counts the day toward the user's streak.
// ══════════════════════════════════════════════════════════════════════════════

// RecordEventCommand contains one learning event.
type RecordEventCommand struct {
	// UserID is the id of the acting user.
	UserID string

	// Type is the kind of event.
	Type activity.Type

	// EntityID is the related lesson or course, if any.
	EntityID string

	// Points overrides the standard award for Type when set.
	Points *int

	// TimeSpentSeconds is learning time to add to the user's total.
	TimeSpentSeconds int64

	// CheckAchievements runs the achievement check after the event is stored.
	CheckAchievements bool

	// BestEffort logs and swallows gamification failures instead of returning them.
	BestEffort bool
}

// Validate validates the command.
func (c RecordEventCommand) Validate() error {
	if c.UserID == "" {
		return invalid("record_event", "user_id is required")
	}
	if !c.Type.IsValid() {
		return invalid("record_event", "unknown event type: "+string(c.Type))
	}
	if c.Points != nil && *c.Points < 0 {
		return invalid("record_event", "points cannot be negative")
	}
	if c.TimeSpentSeconds < 0 {
		return invalid("record_event", "time_spent cannot be negative")
	}
	return nil
}

func (c RecordEventCommand) points() int {
	if c.Points != nil {
		return *c.Points
	}
	return activity.DefaultPoints(c.Type)
}

// RecordEventResult contains the outcome of recording an event.
type RecordEventResult struct {
	// PointsAwarded is zero when the event was a repeated daily login.
	PointsAwarded int `json:"points_awarded"`

	// EntryID is the ledger entry written, empty when nothing was written.
	EntryID string `json:"entry_id,omitempty"`

	// CurrentStreak is the streak after the event.
	CurrentStreak int `json:"current_streak"`

	// StreakUpdated indicates the event was the first of the day.
	StreakUpdated bool `json:"streak_updated"`

	// Achievements lists achievements unlocked by the event.
	Achievements []achievement.Granted `json:"achievements"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RecordEventHandler handles the RecordEventCommand.
type RecordEventHandler struct {
	store        store.Store
	stats        *engine.StatsEngine
	streaks      *engine.StreakEngine
	achievements *engine.AchievementEngine
	clock        timeutil.Clock
	log          *logger.Logger
}

// NewRecordEventHandler creates a new RecordEventHandler.
func NewRecordEventHandler(
	st store.Store,
	stats *engine.StatsEngine,
	streaks *engine.StreakEngine,
	achievements *engine.AchievementEngine,
	clock timeutil.Clock,
	log *logger.Logger,
) *RecordEventHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &RecordEventHandler{
		store:        st,
		stats:        stats,
		streaks:      streaks,
		achievements: achievements,
		clock:        clock,
		log:          log.With(logger.Component("record_event")),
	}
}

// Handle executes the record event command.
func (h *RecordEventHandler) Handle(ctx context.Context, cmd RecordEventCommand) (*RecordEventResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	res, err := h.handle(ctx, cmd)
	if err != nil && cmd.BestEffort {
		h.log.Warn("gamification event dropped",
			logger.UserID(cmd.UserID),
			logger.ActivityType(cmd.Type.String()),
			logger.Err(err),
		)
		return &RecordEventResult{Achievements: []achievement.Granted{}}, nil
	}
	return res, err
}

func (h *RecordEventHandler) handle(ctx context.Context, cmd RecordEventCommand) (*RecordEventResult, error) {
	res := &RecordEventResult{Achievements: []achievement.Granted{}}

	points := cmd.points()
	duplicate := false
	err := h.store.WithinTx(ctx, func(tx store.Repositories) error {
		if cmd.Type == activity.TypeLogin {
			seen, err := h.loggedInToday(ctx, tx, cmd.UserID)
			if err != nil {
				return err
			}
			if seen {
				duplicate = true
				return nil
			}
		}

		id, err := h.stats.AddPoints(ctx, tx, cmd.UserID, points, cmd.Type, cmd.EntityID)
		if err != nil {
			return err
		}
		res.EntryID = id

		switch cmd.Type {
		case activity.TypeLessonCompleted:
			err = h.stats.IncrementLessonsCompleted(ctx, tx, cmd.UserID)
		case activity.TypeCourseCompleted:
			err = h.stats.IncrementCoursesCompleted(ctx, tx, cmd.UserID)
		}
		if err != nil {
			return err
		}

		if cmd.TimeSpentSeconds > 0 {
			return h.stats.AddTimeSpent(ctx, tx, cmd.UserID, cmd.TimeSpentSeconds)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record_event: %w", err)
	}
	if duplicate {
		return res, nil
	}
	res.PointsAwarded = points

	s, updated, err := h.streaks.RecordActivity(ctx, nil, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("record_event: %w", err)
	}
	res.CurrentStreak = streakOf(s)
	res.StreakUpdated = updated

	if cmd.CheckAchievements {
		granted, err := h.achievements.CheckAndAward(ctx, cmd.UserID)
		if err != nil {
			return nil, fmt.Errorf("record_event: %w", err)
		}
		res.Achievements = granted
	}

	h.log.Info("event recorded",
		logger.UserID(cmd.UserID),
		logger.ActivityType(cmd.Type.String()),
		logger.EntityID(cmd.EntityID),
		logger.Points(points),
		logger.Bool("streak_updated", updated),
	)
	return res, nil
}

// loggedInToday locks the user's ledger and reports whether a login entry
// already exists for the current day.
func (h *RecordEventHandler) loggedInToday(ctx context.Context, tx store.Repositories, userID string) (bool, error) {
	if err := tx.Activities().LockUser(ctx, userID); err != nil {
		return false, err
	}
	since := timeutil.StartOfDay(h.clock.Now(), h.clock.Location())
	seen, err := tx.Activities().HasEntrySince(ctx, userID, activity.TypeLogin, since)
	if err != nil {
		return false, fmt.Errorf("check daily login: %w", err)
	}
	return seen, nil
}

// streakOf returns the current streak length, zero for nil.
func streakOf(s *streak.Streak) int {
	if s == nil {
		return 0
	}
	return s.CurrentStreak
}
