package command

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursehub/gamification/internal/application/engine"
	"github.com/coursehub/gamification/internal/domain/activity"
	"github.com/coursehub/gamification/internal/domain/shared"
	"github.com/coursehub/gamification/internal/infrastructure/persistence/memory"
	"github.com/coursehub/gamification/pkg/logger"
	"github.com/coursehub/gamification/pkg/timeutil"
)

type env struct {
	store        *memory.Store
	clock        *timeutil.FixedClock
	stats        *engine.StatsEngine
	streaks      *engine.StreakEngine
	achievements *engine.AchievementEngine

	recordEvent    *RecordEventHandler
	completeCourse *CompleteCourseHandler
	createAch      *CreateAchievementHandler
	maintenance    *MaintenanceHandler
}

func newEnv(t *testing.T) *env {
	t.Helper()
	clock := timeutil.NewFixedClock(time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC), time.UTC)
	st := memory.New(memory.WithClock(clock))
	log := logger.Nop()

	statsEngine := engine.NewStatsEngine(st, log)
	streakEngine := engine.NewStreakEngine(st, clock, log)
	achievementEngine := engine.NewAchievementEngine(st, statsEngine, clock, log)
	leaderboardEngine := engine.NewLeaderboardEngine(st, clock, log)

	return &env{
		store:          st,
		clock:          clock,
		stats:          statsEngine,
		streaks:        streakEngine,
		achievements:   achievementEngine,
		recordEvent:    NewRecordEventHandler(st, statsEngine, streakEngine, achievementEngine, clock, log),
		completeCourse: NewCompleteCourseHandler(st, statsEngine, streakEngine, achievementEngine, log),
		createAch:      NewCreateAchievementHandler(achievementEngine),
		maintenance:    NewMaintenanceHandler(st, statsEngine, streakEngine, leaderboardEngine, clock, log),
	}
}

func TestRecordEvent_LessonCompleted(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.recordEvent.Handle(ctx, RecordEventCommand{
		UserID:           "u1",
		Type:             activity.TypeLessonCompleted,
		EntityID:         "course-1",
		TimeSpentSeconds: 300,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, res.PointsAwarded)
	assert.NotEmpty(t, res.EntryID)
	assert.True(t, res.StreakUpdated)
	assert.Equal(t, 1, res.CurrentStreak)

	s, err := e.stats.GetUserStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), s.TotalPoints)
	assert.Equal(t, int64(1), s.LessonsCompleted)
	assert.Equal(t, int64(300), s.TotalTimeSpent)
}

func TestRecordEvent_LoginOncePerDay(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	cmd := RecordEventCommand{UserID: "u1", Type: activity.TypeLogin}

	res, err := e.recordEvent.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, 1, res.PointsAwarded)

	res, err = e.recordEvent.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.Zero(t, res.PointsAwarded)
	assert.Empty(t, res.EntryID)

	e.clock.AddDays(1)
	res, err = e.recordEvent.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, 1, res.PointsAwarded)
	assert.Equal(t, 2, res.CurrentStreak)

	entries, err := e.store.Activities().ListByUser(ctx, "u1", 10, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRecordEvent_ConcurrentLoginsAwardOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.recordEvent.Handle(ctx, RecordEventCommand{UserID: "u1", Type: activity.TypeLogin})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	s, err := e.stats.GetUserStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.TotalPoints)

	entries, err := e.store.Activities().ListByUser(ctx, "u1", 10, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRecordEvent_PointsOverrideAndAchievements(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.createAch.Handle(ctx, CreateAchievementCommand{Name: "First lesson", Type: "lesson_completion", Threshold: 1, PointsAwarded: 20})
	require.NoError(t, err)

	points := 7
	res, err := e.recordEvent.Handle(ctx, RecordEventCommand{
		UserID:            "u1",
		Type:              activity.TypeLessonCompleted,
		EntityID:          "course-1",
		Points:            &points,
		CheckAchievements: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, res.PointsAwarded)
	require.Len(t, res.Achievements, 1)
	assert.Equal(t, "First lesson", res.Achievements[0].Name)

	s, err := e.stats.GetUserStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(27), s.TotalPoints)
}

func TestRecordEvent_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.recordEvent.Handle(ctx, RecordEventCommand{Type: activity.TypeLogin})
	assert.True(t, shared.IsValidation(err))

	_, err = e.recordEvent.Handle(ctx, RecordEventCommand{UserID: "u1", Type: "dance"})
	assert.True(t, shared.IsValidation(err))

	negative := -1
	_, err = e.recordEvent.Handle(ctx, RecordEventCommand{UserID: "u1", Type: activity.TypeLogin, Points: &negative})
	assert.True(t, shared.IsValidation(err))
}

func TestRecordEvent_BestEffortSwallowsFailures(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := e.recordEvent.Handle(ctx, RecordEventCommand{UserID: "u1", Type: activity.TypeLessonProgress, BestEffort: true})
	require.NoError(t, err)
	assert.Zero(t, res.PointsAwarded)

	_, err = e.recordEvent.Handle(ctx, RecordEventCommand{UserID: "u1", Type: activity.TypeLessonProgress})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompleteCourse_FirstCompletionOnly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	cmd := CompleteCourseCommand{UserID: "u1", CourseID: "c1", Level: activity.LevelIntermediate, LessonCount: 12}

	res, err := e.completeCourse.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.True(t, res.FirstCompletion)
	assert.Equal(t, 350, res.PointsAwarded)

	res, err = e.completeCourse.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.False(t, res.FirstCompletion)
	assert.Zero(t, res.PointsAwarded)

	s, err := e.stats.GetUserStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(350), s.TotalPoints)
	assert.Equal(t, int64(1), s.CoursesCompleted)
}

func TestCreateAchievement_RejectsInvalidInput(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.createAch.Handle(ctx, CreateAchievementCommand{Name: "", Type: "streak"})
	assert.True(t, shared.IsValidation(err))

	_, err = e.createAch.Handle(ctx, CreateAchievementCommand{Name: "x", Type: "karma"})
	assert.True(t, shared.IsValidation(err))

	_, err = e.createAch.Handle(ctx, CreateAchievementCommand{Name: "x", Type: "streak", Threshold: -3})
	assert.True(t, shared.IsValidation(err))

	a, err := e.createAch.Handle(ctx, CreateAchievementCommand{Name: "Week", Type: "streak", Threshold: 7, PointsAwarded: 70})
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
}

func TestMaintenance_StreakRewardsOncePerDay(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.recordEvent.Handle(ctx, RecordEventCommand{UserID: "active", Type: activity.TypeLessonProgress})
	require.NoError(t, err)
	_, err = e.stats.AddPoints(ctx, nil, "only-award", 20, activity.TypeEarnAchievement, "a1")
	require.NoError(t, err)

	e.clock.AddDays(1)
	res, err := e.maintenance.Run(ctx, JobStreakRewards)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsAffected)

	res, err = e.maintenance.Run(ctx, JobStreakRewards)
	require.NoError(t, err)
	assert.Zero(t, res.RowsAffected)

	s, err := e.stats.GetUserStats(ctx, "active")
	require.NoError(t, err)
	assert.Equal(t, int64(5+5), s.TotalPoints)
}

func TestMaintenance_Jobs(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.recordEvent.Handle(ctx, RecordEventCommand{UserID: "u1", Type: activity.TypeLessonCompleted, EntityID: "c1"})
	require.NoError(t, err)

	for _, job := range Jobs {
		_, err := e.maintenance.Run(ctx, job)
		require.NoError(t, err, job)
	}

	s, err := e.stats.GetUserStats(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, s.WeeklyPoints)
	assert.Zero(t, s.MonthlyPoints)
	assert.Equal(t, int64(10), s.TotalPoints)
	require.NotNil(t, s.Rank)

	_, err = ParseJob("defrag")
	assert.True(t, shared.IsValidation(err))
}
