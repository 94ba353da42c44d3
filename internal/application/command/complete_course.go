package command

import (
	"context"
	"fmt"

	"github.com/coursehub/gamification/internal/application/engine"
	"github.com/coursehub/gamification/internal/domain/achievement"
	"github.com/coursehub/gamification/internal/domain/activity"
	"github.com/coursehub/gamification/internal/domain/store"
	"github.com/coursehub/gamification/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE COURSE COMMAND
// Awards the level-based course completion bonus the first time a user finishes
// a course. Called from the enrollment flow, which must never fail because of
// gamification, so errors are logged and swallowed.
// ══════════════════════════════════════════════════════════════════════════════

// CompleteCourseCommand contains a finished course.
type CompleteCourseCommand struct {
	UserID      string
	CourseID    string
	Level       activity.CourseLevel
	LessonCount int
}

// Validate validates the command.
func (c CompleteCourseCommand) Validate() error {
	if c.UserID == "" {
		return invalid("complete_course", "user_id is required")
	}
	if c.CourseID == "" {
		return invalid("complete_course", "course_id is required")
	}
	if c.LessonCount < 0 {
		return invalid("complete_course", "lesson_count cannot be negative")
	}
	return nil
}

// CompleteCourseResult contains the outcome of a course completion.
type CompleteCourseResult struct {
	PointsAwarded   int                   `json:"points_awarded"`
	FirstCompletion bool                  `json:"first_completion"`
	Achievements    []achievement.Granted `json:"achievements"`
}

// CompleteCourseHandler handles the CompleteCourseCommand.
type CompleteCourseHandler struct {
	store        store.Store
	stats        *engine.StatsEngine
	streaks      *engine.StreakEngine
	achievements *engine.AchievementEngine
	log          *logger.Logger
}

// NewCompleteCourseHandler creates a new CompleteCourseHandler.
func NewCompleteCourseHandler(
	st store.Store,
	stats *engine.StatsEngine,
	streaks *engine.StreakEngine,
	achievements *engine.AchievementEngine,
	log *logger.Logger,
) *CompleteCourseHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &CompleteCourseHandler{
		store:        st,
		stats:        stats,
		streaks:      streaks,
		achievements: achievements,
		log:          log.With(logger.Component("complete_course")),
	}
}

// Handle executes the command. Only validation errors are returned.
func (h *CompleteCourseHandler) Handle(ctx context.Context, cmd CompleteCourseCommand) (*CompleteCourseResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	res, err := h.handle(ctx, cmd)
	if err != nil {
		h.log.Error("course completion award failed",
			logger.UserID(cmd.UserID),
			logger.EntityID(cmd.CourseID),
			logger.Err(err),
		)
		return &CompleteCourseResult{Achievements: []achievement.Granted{}}, nil
	}
	return res, nil
}

func (h *CompleteCourseHandler) handle(ctx context.Context, cmd CompleteCourseCommand) (*CompleteCourseResult, error) {
	res := &CompleteCourseResult{Achievements: []achievement.Granted{}}
	points := activity.CourseCompletionPoints(cmd.Level, cmd.LessonCount)

	err := h.store.WithinTx(ctx, func(tx store.Repositories) error {
		done, err := tx.Activities().HasEntryForEntity(ctx, cmd.UserID, activity.TypeCourseCompleted, cmd.CourseID)
		if err != nil {
			return fmt.Errorf("check previous completion: %w", err)
		}
		if done {
			return nil
		}
		if _, err := h.stats.AddPoints(ctx, tx, cmd.UserID, points, activity.TypeCourseCompleted, cmd.CourseID); err != nil {
			return err
		}
		if err := h.stats.IncrementCoursesCompleted(ctx, tx, cmd.UserID); err != nil {
			return err
		}
		res.FirstCompletion = true
		res.PointsAwarded = points
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !res.FirstCompletion {
		return res, nil
	}

	if _, _, err := h.streaks.RecordActivity(ctx, nil, cmd.UserID); err != nil {
		return nil, err
	}
	granted, err := h.achievements.CheckAndAward(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	res.Achievements = granted

	h.log.Info("course completed",
		logger.UserID(cmd.UserID),
		logger.EntityID(cmd.CourseID),
		logger.String("level", string(cmd.Level)),
		logger.Points(points),
	)
	return res, nil
}
