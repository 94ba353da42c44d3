package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursehub/gamification/internal/application/engine"
	"github.com/coursehub/gamification/internal/domain/achievement"
	"github.com/coursehub/gamification/internal/domain/activity"
	"github.com/coursehub/gamification/internal/domain/leaderboard"
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
	leaderboards *engine.LeaderboardEngine
}

func newEnv(t *testing.T) *env {
	t.Helper()
	clock := timeutil.NewFixedClock(time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC), time.UTC)
	st := memory.New(memory.WithClock(clock))
	log := logger.Nop()
	statsEngine := engine.NewStatsEngine(st, log)
	return &env{
		store:        st,
		clock:        clock,
		stats:        statsEngine,
		streaks:      engine.NewStreakEngine(st, clock, log),
		achievements: engine.NewAchievementEngine(st, statsEngine, clock, log),
		leaderboards: engine.NewLeaderboardEngine(st, clock, log),
	}
}

func TestGetLeaderboard(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	h := NewGetLeaderboardHandler(e.leaderboards)

	_, err := e.stats.AddPoints(ctx, nil, "a", 50, activity.TypeLessonCompleted, "c1")
	require.NoError(t, err)
	_, err = e.stats.AddPoints(ctx, nil, "b", 30, activity.TypeLessonCompleted, "c1")
	require.NoError(t, err)

	board, err := h.Handle(ctx, GetLeaderboardQuery{Scope: leaderboard.ScopeCourse, CourseID: "c1"})
	require.NoError(t, err)
	require.Len(t, board.Entries, 2)
	assert.Equal(t, int64(50), board.Entries[0].Points)
	assert.Equal(t, int64(30), board.Entries[1].Points)
	assert.Equal(t, leaderboard.DefaultLimit, board.Limit)

	_, err = h.Handle(ctx, GetLeaderboardQuery{Scope: leaderboard.ScopeGlobal, Offset: -1})
	assert.True(t, shared.IsValidation(err))
}

func TestGetUserStats(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	h := NewGetUserStatsHandler(e.stats)

	dto, err := h.Handle(ctx, GetUserStatsQuery{UserID: "nobody"})
	require.NoError(t, err)
	assert.Nil(t, dto)

	_, err = e.stats.AddPoints(ctx, nil, "u1", 15, activity.TypeLessonCompleted, "")
	require.NoError(t, err)
	dto, err = h.Handle(ctx, GetUserStatsQuery{UserID: "u1"})
	require.NoError(t, err)
	require.NotNil(t, dto)
	assert.Equal(t, int64(15), dto.TotalPoints)
	assert.Equal(t, 1, dto.Rank)
}

func TestStreakQueries(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	h := NewStreakHandler(e.streaks)

	dto, err := h.UserStreak(ctx, GetUserStreakQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Nil(t, dto)

	_, _, err = e.streaks.RecordActivity(ctx, nil, "u1")
	require.NoError(t, err)

	dto, err = h.UserStreak(ctx, GetUserStreakQuery{UserID: "u1"})
	require.NoError(t, err)
	require.NotNil(t, dto)
	assert.Equal(t, 1, dto.CurrentStreak)
	assert.Equal(t, "2024-02-01", dto.LastActivityDate)
	assert.True(t, dto.ActiveToday)

	top, err := h.TopStreaks(ctx, GetTopStreaksQuery{})
	require.NoError(t, err)
	assert.Len(t, top, 1)
}

func TestAchievementQueries(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	h := NewAchievementHandler(e.achievements)

	require.NoError(t, e.achievements.Create(ctx, &achievement.Achievement{
		Name: "Graduate", Type: achievement.TypeCourseCompletion, Threshold: 1, PointsAwarded: 100,
	}))
	require.NoError(t, e.stats.IncrementCoursesCompleted(ctx, nil, "u1"))
	_, err := e.achievements.CheckAndAward(ctx, "u1")
	require.NoError(t, err)

	catalog, err := h.Catalog(ctx)
	require.NoError(t, err)
	require.Len(t, catalog, 1)
	assert.Equal(t, "course_completion", catalog[0].Type)

	earned, err := h.UserAchievements(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, earned, 1)
	assert.Equal(t, "Graduate", earned[0].Name)
	assert.False(t, earned[0].Notified)
}

func TestActivityQueries(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	h := NewActivityHandler(e.store.Activities())

	for i := 0; i < 15; i++ {
		e.clock.Set(e.clock.Now().Add(time.Minute))
		_, err := e.stats.AddPoints(ctx, nil, "u1", i, activity.TypeLessonProgress, "c1")
		require.NoError(t, err)
	}
	_, err := e.stats.AddPoints(ctx, nil, "u2", 1, activity.TypeLogin, "")
	require.NoError(t, err)

	history, err := h.History(ctx, GetActivityHistoryQuery{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, history, DefaultHistoryLimit)
	assert.Equal(t, 14, history[0].Points)

	history, err = h.History(ctx, GetActivityHistoryQuery{UserID: "u1", Limit: 10, Offset: 10})
	require.NoError(t, err)
	assert.Len(t, history, 5)

	recent, err := h.Recent(ctx, GetRecentActivityQuery{})
	require.NoError(t, err)
	require.Len(t, recent, 16)
	assert.Equal(t, "u2", recent[0].UserID)
}
