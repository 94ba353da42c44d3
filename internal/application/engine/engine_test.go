package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursehub/gamification/internal/domain/achievement"
	"github.com/coursehub/gamification/internal/domain/activity"
	"github.com/coursehub/gamification/internal/domain/leaderboard"
	"github.com/coursehub/gamification/internal/domain/store"
	"github.com/coursehub/gamification/internal/infrastructure/persistence/memory"
	"github.com/coursehub/gamification/pkg/logger"
	"github.com/coursehub/gamification/pkg/timeutil"
)

type fixture struct {
	store        *memory.Store
	clock        *timeutil.FixedClock
	stats        *StatsEngine
	streaks      *StreakEngine
	achievements *AchievementEngine
	leaderboards *LeaderboardEngine
}

func newFixture(t *testing.T, opts ...LeaderboardOption) *fixture {
	t.Helper()
	clock := timeutil.NewFixedClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), time.UTC)
	st := memory.New(memory.WithClock(clock))
	log := logger.Nop()
	statsEngine := NewStatsEngine(st, log)
	return &fixture{
		store:        st,
		clock:        clock,
		stats:        statsEngine,
		streaks:      NewStreakEngine(st, clock, log),
		achievements: NewAchievementEngine(st, statsEngine, clock, log),
		leaderboards: NewLeaderboardEngine(st, clock, log, opts...),
	}
}

func (f *fixture) addPoints(t *testing.T, userID string, points int, typ activity.Type, entityID string) {
	t.Helper()
	_, err := f.stats.AddPoints(context.Background(), nil, userID, points, typ, entityID)
	require.NoError(t, err)
}

func (f *fixture) createAchievement(t *testing.T, name string, typ achievement.Type, threshold, points int) *achievement.Achievement {
	t.Helper()
	a := &achievement.Achievement{Name: name, Type: typ, Threshold: threshold, PointsAwarded: points}
	require.NoError(t, f.achievements.Create(context.Background(), a))
	return a
}

// ══════════════════════════════════════════════════════════════════════════════
// STATS
// ══════════════════════════════════════════════════════════════════════════════

func TestAddPoints_ConcurrentCallsSumExactly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 1; i <= 40; i++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			_, err := f.stats.AddPoints(ctx, nil, "u1", p, activity.TypeLessonProgress, "c1")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	s, err := f.stats.GetUserStats(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, int64(820), s.TotalPoints)
	assert.Equal(t, int64(820), s.WeeklyPoints)
	assert.Equal(t, int64(820), s.MonthlyPoints)

	ledger, err := f.store.Activities().SumPoints(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, s.TotalPoints, ledger)
}

func TestGetUserStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.stats.GetUserStats(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, s)

	f.addPoints(t, "a", 100, activity.TypeCourseCompleted, "c1")
	f.addPoints(t, "b", 100, activity.TypeCourseCompleted, "c1")
	f.addPoints(t, "c", 50, activity.TypeLessonCompleted, "c1")

	s, err = f.stats.GetUserStats(ctx, "b")
	require.NoError(t, err)
	require.NotNil(t, s.Rank)
	assert.Equal(t, 1, *s.Rank, "ties share the competition rank")

	s, err = f.stats.GetUserStats(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 3, *s.Rank)
}

func TestCounters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.stats.IncrementLessonsCompleted(ctx, nil, "u1"))
	require.NoError(t, f.stats.IncrementLessonsCompleted(ctx, nil, "u1"))
	require.NoError(t, f.stats.IncrementCoursesCompleted(ctx, nil, "u1"))
	require.NoError(t, f.stats.AddTimeSpent(ctx, nil, "u1", 600))

	s, err := f.stats.GetUserStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), s.LessonsCompleted)
	assert.Equal(t, int64(1), s.CoursesCompleted)
	assert.Equal(t, int64(600), s.TotalTimeSpent)
	assert.Zero(t, s.TotalPoints)
}

func TestResetWeekly_KeepsTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addPoints(t, "u1", 30, activity.TypeLessonCompleted, "c1")

	n, err := f.stats.ResetWeeklyPoints(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	s, err := f.stats.GetUserStats(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, s.WeeklyPoints)
	assert.Equal(t, int64(30), s.MonthlyPoints)
	assert.Equal(t, int64(30), s.TotalPoints)

	_, err = f.stats.ResetMonthlyPoints(ctx)
	require.NoError(t, err)
	s, err = f.stats.GetUserStats(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, s.MonthlyPoints)
	assert.Equal(t, int64(30), s.TotalPoints)
}

func TestUpdateRanks_UsesTieBreak(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addPoints(t, "late", 10, activity.TypeLessonCompleted, "")
	f.clock.Set(f.clock.Now().Add(-time.Hour))
	f.addPoints(t, "early", 10, activity.TypeLessonCompleted, "")

	n, err := f.stats.UpdateRanks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	early, err := f.store.Stats().Get(ctx, "early")
	require.NoError(t, err)
	late, err := f.store.Stats().Get(ctx, "late")
	require.NoError(t, err)
	assert.Equal(t, 1, *early.Rank)
	assert.Equal(t, 2, *late.Rank)
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAKS
// ══════════════════════════════════════════════════════════════════════════════

func TestRecordActivity_SameDayIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, updated, err := f.streaks.RecordActivity(ctx, nil, "u1")
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, 1, s.CurrentStreak)

	s, updated, err = f.streaks.RecordActivity(ctx, nil, "u1")
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Equal(t, 1, s.CurrentStreak)
}

func TestRecordActivity_Sequences(t *testing.T) {
	tests := []struct {
		name    string
		offsets []int
		current int
		longest int
	}{
		{name: "consecutive days", offsets: []int{0, 1, 2}, current: 3, longest: 3},
		{name: "gap restarts at one", offsets: []int{0, 1, 5}, current: 1, longest: 2},
		{name: "longest never shrinks", offsets: []int{0, 1, 2, 3, 10, 11}, current: 2, longest: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			start := f.clock.Now()

			var current, longest int
			for _, off := range tt.offsets {
				f.clock.Set(start.AddDate(0, 0, off))
				got, _, err := f.streaks.RecordActivity(ctx, nil, "u1")
				require.NoError(t, err)
				assert.GreaterOrEqual(t, got.LongestStreak, longest)
				current, longest = got.CurrentStreak, got.LongestStreak
			}
			assert.Equal(t, tt.current, current)
			assert.Equal(t, tt.longest, longest)
		})
	}
}

func TestCheckAndUpdateAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := f.clock.Now()

	_, _, err := f.streaks.RecordActivity(ctx, nil, "lapsed")
	require.NoError(t, err)
	f.clock.Set(start.AddDate(0, 0, 2))
	_, _, err = f.streaks.RecordActivity(ctx, nil, "yesterday")
	require.NoError(t, err)
	f.clock.Set(start.AddDate(0, 0, 3))
	_, _, err = f.streaks.RecordActivity(ctx, nil, "today")
	require.NoError(t, err)

	n, err := f.streaks.CheckAndUpdateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	lapsed, err := f.streaks.GetUserStreak(ctx, "lapsed")
	require.NoError(t, err)
	assert.Equal(t, 0, lapsed.CurrentStreak)
	assert.Equal(t, 1, lapsed.LongestStreak)
	assert.Equal(t, timeutil.DateOf(start, time.UTC), lapsed.LastActivityDate)

	kept, err := f.streaks.GetUserStreak(ctx, "yesterday")
	require.NoError(t, err)
	assert.Equal(t, 1, kept.CurrentStreak)

	n, err = f.streaks.CheckAndUpdateAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "already reset rows are not touched again")

	// The job leaves zero; the next activity restarts at one.
	s, updated, err := f.streaks.RecordActivity(ctx, nil, "lapsed")
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, 1, s.CurrentStreak)
}

func TestHasActivityTodayAndTop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.streaks.HasActivityToday(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	start := f.clock.Now()
	for day := 0; day < 3; day++ {
		f.clock.Set(start.AddDate(0, 0, day))
		_, _, err := f.streaks.RecordActivity(ctx, nil, "u1")
		require.NoError(t, err)
	}
	_, _, err = f.streaks.RecordActivity(ctx, nil, "u2")
	require.NoError(t, err)

	ok, err = f.streaks.HasActivityToday(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	top, err := f.streaks.GetTopStreaks(ctx, 0)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "u1", top[0].UserID)
	assert.Equal(t, 3, top[0].CurrentStreak)

	s, err := f.streaks.GetUserStreak(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, s)
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

func TestCheckAndAward_GrantsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createAchievement(t, "Five lessons", achievement.TypeLessonCompletion, 5, 50)

	for i := 0; i < 5; i++ {
		require.NoError(t, f.stats.IncrementLessonsCompleted(ctx, nil, "u1"))
	}

	granted, err := f.achievements.CheckAndAward(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, granted, 1)
	assert.Equal(t, a.ID, granted[0].ID)
	assert.Equal(t, 50, granted[0].PointsAwarded)

	granted, err = f.achievements.CheckAndAward(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, granted)

	s, err := f.stats.GetUserStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), s.TotalPoints)

	entries, err := f.store.Activities().ListByUser(ctx, "u1", 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, activity.TypeEarnAchievement, entries[0].Type)
	assert.Equal(t, a.ID, entries[0].EntityID)
}

var errGrant = errors.New("grant failed")

// failingGrantStore fails the n-th Grant made inside a transaction.
type failingGrantStore struct {
	*memory.Store
	failOn int
	calls  int
}

func (s *failingGrantStore) WithinTx(ctx context.Context, fn func(tx store.Repositories) error) error {
	return s.Store.WithinTx(ctx, func(tx store.Repositories) error {
		return fn(failingGrantRepos{Repositories: tx, s: s})
	})
}

type failingGrantRepos struct {
	store.Repositories
	s *failingGrantStore
}

func (r failingGrantRepos) Achievements() achievement.Repository {
	return failingGrantAchievements{Repository: r.Repositories.Achievements(), s: r.s}
}

type failingGrantAchievements struct {
	achievement.Repository
	s *failingGrantStore
}

func (r failingGrantAchievements) Grant(ctx context.Context, userID, achievementID string, earnedAt time.Time) (*achievement.UserAchievement, bool, error) {
	r.s.calls++
	if r.s.calls == r.s.failOn {
		return nil, false, errGrant
	}
	return r.Repository.Grant(ctx, userID, achievementID, earnedAt)
}

func TestCheckAndAward_FailureRollsBackEveryAward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createAchievement(t, "First lesson", achievement.TypeLessonCompletion, 1, 10)
	f.createAchievement(t, "Two lessons", achievement.TypeLessonCompletion, 2, 20)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.stats.IncrementLessonsCompleted(ctx, nil, "u1"))
	}

	st := &failingGrantStore{Store: f.store, failOn: 2}
	statsEngine := NewStatsEngine(st, logger.Nop())
	awards := NewAchievementEngine(st, statsEngine, f.clock, logger.Nop())

	granted, err := awards.CheckAndAward(ctx, "u1")
	require.ErrorIs(t, err, errGrant)
	assert.Nil(t, granted)
	assert.Equal(t, 2, st.calls)

	earned, err := f.store.Achievements().EarnedIDs(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, earned)

	entries, err := f.store.Activities().ListByUser(ctx, "u1", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)

	s, err := f.stats.GetUserStats(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, s.TotalPoints)
	assert.Zero(t, s.WeeklyPoints)

	granted, err = f.achievements.CheckAndAward(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, granted, 2)
	s, err = f.stats.GetUserStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(30), s.TotalPoints)
}

func TestCheckAndAward_BelowThresholdAndNoStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createAchievement(t, "Five lessons", achievement.TypeLessonCompletion, 5, 50)

	granted, err := f.achievements.CheckAndAward(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, granted)

	for i := 0; i < 4; i++ {
		require.NoError(t, f.stats.IncrementLessonsCompleted(ctx, nil, "u1"))
	}
	granted, err = f.achievements.CheckAndAward(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, granted)
}

func TestCheckAndAward_StreakAchievement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createAchievement(t, "Three day streak", achievement.TypeStreak, 3, 20)
	f.createAchievement(t, "Perfect", achievement.TypePerfectScore, 0, 999)

	f.addPoints(t, "u1", 10, activity.TypeLessonCompleted, "c1")
	start := f.clock.Now()
	for day := 0; day < 3; day++ {
		f.clock.Set(start.AddDate(0, 0, day))
		_, _, err := f.streaks.RecordActivity(ctx, nil, "u1")
		require.NoError(t, err)
	}

	before, err := f.stats.GetUserStats(ctx, "u1")
	require.NoError(t, err)

	granted, err := f.achievements.CheckAndAward(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, granted, 1, "perfect score never unlocks")
	assert.Equal(t, "Three day streak", granted[0].Name)

	after, err := f.stats.GetUserStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, before.TotalPoints+20, after.TotalPoints)
	assert.Equal(t, before.WeeklyPoints+20, after.WeeklyPoints)
}

func TestUnnotified_ReadAndAcknowledge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createAchievement(t, "Time", achievement.TypeTimeSpent, 60, 5)
	require.NoError(t, f.stats.AddTimeSpent(ctx, nil, "u1", 120))

	_, err := f.achievements.CheckAndAward(ctx, "u1")
	require.NoError(t, err)

	list, err := f.achievements.Unnotified(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Notified)
	assert.Equal(t, "Time", list[0].Achievement.Name)

	list, err = f.achievements.Unnotified(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, list)

	earned, err := f.achievements.UserAchievements(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, earned, 1)
}

func TestCreateAchievement_Validates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.achievements.Create(ctx, &achievement.Achievement{Name: "", Type: achievement.TypeStreak})
	assert.ErrorIs(t, err, achievement.ErrInvalidName)

	err = f.achievements.Create(ctx, &achievement.Achievement{Name: "x", Type: "bogus"})
	assert.ErrorIs(t, err, achievement.ErrUnknownType)

	catalog, err := f.achievements.Catalog(ctx)
	require.NoError(t, err)
	assert.Empty(t, catalog)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARDS
// ══════════════════════════════════════════════════════════════════════════════

func TestLeaderboard_PaginationRanks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		f.addPoints(t, fmt.Sprintf("user-%02d", i), 1000-i*10, activity.TypeLessonCompleted, "")
	}

	q, err := leaderboard.NewQuery(leaderboard.ScopeGlobal, "", 10, 10)
	require.NoError(t, err)
	b, err := f.leaderboards.Get(ctx, q)
	require.NoError(t, err)
	require.Len(t, b.Entries, 10)
	assert.Equal(t, 11, b.Entries[0].Rank)
	assert.Equal(t, "user-10", b.Entries[0].UserID)
	assert.Equal(t, 20, b.Entries[9].Rank)
}

func TestLeaderboard_WeeklyAfterReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addPoints(t, "old", 100, activity.TypeCourseCompleted, "")
	_, err := f.stats.ResetWeeklyPoints(ctx)
	require.NoError(t, err)
	f.addPoints(t, "new", 5, activity.TypeLogin, "")

	q, err := leaderboard.NewQuery(leaderboard.ScopeWeekly, "", 10, 0)
	require.NoError(t, err)
	b, err := f.leaderboards.Get(ctx, q)
	require.NoError(t, err)
	require.Len(t, b.Entries, 2)
	assert.Equal(t, "new", b.Entries[0].UserID)
	assert.Equal(t, int64(5), b.Entries[0].Points)
}

func TestLeaderboard_CourseBoard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addPoints(t, "a", 20, activity.TypeLessonCompleted, "course-1")
	f.addPoints(t, "a", 30, activity.TypeLessonCompleted, "course-1")
	f.addPoints(t, "b", 30, activity.TypeLessonProgress, "course-1")
	f.addPoints(t, "b", 500, activity.TypeLessonCompleted, "course-2")
	f.addPoints(t, "b", 20, activity.TypeEarnAchievement, "course-1")

	q, err := leaderboard.NewQuery(leaderboard.ScopeCourse, "course-1", 10, 0)
	require.NoError(t, err)
	b, err := f.leaderboards.Get(ctx, q)
	require.NoError(t, err)
	require.Len(t, b.Entries, 2)
	assert.Equal(t, leaderboard.Entry{Rank: 1, UserID: "a", Points: 50}, b.Entries[0])
	assert.Equal(t, leaderboard.Entry{Rank: 2, UserID: "b", Points: 30}, b.Entries[1])
}

type mapCache struct {
	mu    sync.Mutex
	pages map[leaderboard.Query]*leaderboard.Board
	gets  int
}

func newMapCache() *mapCache {
	return &mapCache{pages: make(map[leaderboard.Query]*leaderboard.Board)}
}

func (c *mapCache) Get(_ context.Context, q leaderboard.Query) (*leaderboard.Board, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	b, ok := c.pages[q]
	if !ok {
		return nil, leaderboard.ErrCacheMiss
	}
	return b, nil
}

func (c *mapCache) Set(_ context.Context, q leaderboard.Query, b *leaderboard.Board, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages[q] = b
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, scope leaderboard.Scope, courseID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for q := range c.pages {
		if q.Scope == scope && (courseID == "" || q.CourseID == courseID) {
			delete(c.pages, q)
		}
	}
	return nil
}

func TestLeaderboard_WarmupFillsCache(t *testing.T) {
	cache := newMapCache()
	f := newFixture(t, WithCache(cache, time.Minute))
	ctx := context.Background()
	f.addPoints(t, "a", 10, activity.TypeLessonCompleted, "c1")
	f.addPoints(t, "b", 20, activity.TypeLessonCompleted, "c2")

	res, err := f.leaderboards.Warmup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Boards)
	assert.Equal(t, 2, res.Courses)
	assert.Len(t, cache.pages, 5)

	// Later writes are not visible until the cached board expires or is rebuilt.
	f.addPoints(t, "c", 1000, activity.TypeLessonCompleted, "c1")
	q, err := leaderboard.NewQuery(leaderboard.ScopeGlobal, "", 10, 0)
	require.NoError(t, err)
	b, err := f.leaderboards.Get(ctx, q)
	require.NoError(t, err)
	require.Len(t, b.Entries, 2)
	assert.Equal(t, "b", b.Entries[0].UserID)

	f.leaderboards.Invalidate(ctx, leaderboard.ScopeGlobal, "")
	b, err = f.leaderboards.Get(ctx, q)
	require.NoError(t, err)
	require.Len(t, b.Entries, 3)
	assert.Equal(t, "c", b.Entries[0].UserID)
}
