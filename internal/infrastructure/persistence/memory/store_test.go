package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursehub/gamification/internal/domain/achievement"
	"github.com/coursehub/gamification/internal/domain/activity"
	"github.com/coursehub/gamification/internal/domain/stats"
	"github.com/coursehub/gamification/internal/domain/store"
	"github.com/coursehub/gamification/internal/domain/streak"
	"github.com/coursehub/gamification/pkg/timeutil"
)

func newTestStore(t *testing.T) (*Store, *timeutil.FixedClock) {
	t.Helper()
	clock := timeutil.NewFixedClock(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC), time.UTC)
	return New(WithClock(clock)), clock
}

func TestIncrement_ConcurrentAddsAreNotLost(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Stats().Increment(ctx, "u1", stats.PointDeltas(10)...))
		}()
	}
	wg.Wait()

	got, err := s.Stats().Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), got.TotalPoints)
	assert.Equal(t, int64(500), got.WeeklyPoints)
	assert.Equal(t, int64(500), got.MonthlyPoints)
}

func TestIncrement_LastUpdatedMovesOnlyWithPoints(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Stats().Increment(ctx, "u1", stats.PointDeltas(5)...))
	first, err := s.Stats().Get(ctx, "u1")
	require.NoError(t, err)

	clock.Set(clock.Now().Add(time.Hour))
	require.NoError(t, s.Stats().Increment(ctx, "u1", stats.FieldDelta{Field: stats.FieldLessonsCompleted, Delta: 1}))
	second, err := s.Stats().Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first.LastUpdated, second.LastUpdated)
	assert.Equal(t, int64(1), second.LessonsCompleted)
}

func TestIncrement_RejectsBadInput(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.Stats().Increment(ctx, "", stats.PointDeltas(1)...), stats.ErrInvalidUserID)
	assert.ErrorIs(t, s.Stats().Increment(ctx, "u1", stats.FieldDelta{Field: "rank", Delta: 1}), stats.ErrInvalidField)
	assert.ErrorIs(t, s.Stats().Increment(ctx, "u1", stats.FieldDelta{Field: stats.FieldTotalPoints, Delta: -1}), stats.ErrNegativeDelta)

	_, err := s.Stats().Get(ctx, "u1")
	assert.ErrorIs(t, err, stats.ErrStatsNotFound)
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(tx store.Repositories) error {
		entry, err := activity.NewEntry("u1", activity.TypeLogin, "", 1)
		require.NoError(t, err)
		_, err = tx.Activities().Append(ctx, entry)
		require.NoError(t, err)
		require.NoError(t, tx.Stats().Increment(ctx, "u1", stats.PointDeltas(1)...))
		return boom
	})
	require.ErrorIs(t, err, boom)

	entries, err := s.Activities().ListByUser(ctx, "u1", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
	_, err = s.Stats().Get(ctx, "u1")
	assert.ErrorIs(t, err, stats.ErrStatsNotFound)
}

func TestWithinTx_RollsBackOnPanic(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = s.WithinTx(ctx, func(tx store.Repositories) error {
			_ = tx.Stats().Increment(ctx, "u1", stats.PointDeltas(1)...)
			panic("boom")
		})
	})
	_, err := s.Stats().Get(ctx, "u1")
	assert.ErrorIs(t, err, stats.ErrStatsNotFound)
}

func TestActivity_ListingAndLookups(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	repo := s.Activities()

	for i, typ := range []activity.Type{activity.TypeLogin, activity.TypeLessonCompleted, activity.TypeMaintainStreak} {
		clock.Set(clock.Now().Add(time.Minute))
		e, err := activity.NewEntry("u1", typ, "c1", i+1)
		require.NoError(t, err)
		_, err = repo.Append(ctx, e)
		require.NoError(t, err)
	}

	list, err := repo.ListByUser(ctx, "u1", 2, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, activity.TypeMaintainStreak, list[0].Type)
	assert.Equal(t, activity.TypeLessonCompleted, list[1].Type)

	sum, err := repo.SumPoints(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(6), sum)

	ok, err := repo.HasEntryForEntity(ctx, "u1", activity.TypeLessonCompleted, "c1")
	require.NoError(t, err)
	assert.True(t, ok)

	users, err := repo.UsersActiveBetween(ctx, clock.Now().Add(-time.Hour), clock.Now().Add(time.Second),
		[]activity.Type{activity.TypeLogin, activity.TypeLessonCompleted, activity.TypeMaintainStreak})
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestStreak_RecordAndReset(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	day1 := timeutil.Date(2024, 3, 1)

	got, changed, err := s.Streaks().Record(ctx, "u1", day1)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 1, got.CurrentStreak)

	_, changed, err = s.Streaks().Record(ctx, "u1", day1)
	require.NoError(t, err)
	assert.False(t, changed)

	got, _, err = s.Streaks().Record(ctx, "u1", day1.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentStreak)

	n, err := s.Streaks().ResetLapsed(ctx, day1.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err = s.Streaks().Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentStreak)
	assert.Equal(t, 2, got.LongestStreak)
	assert.Equal(t, day1.AddDate(0, 0, 1), got.LastActivityDate)

	_, err = s.Streaks().Get(ctx, "nobody")
	assert.ErrorIs(t, err, streak.ErrStreakNotFound)
}

func TestAchievement_GrantIsIdempotent(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	a := &achievement.Achievement{Name: "First", Type: achievement.TypeLessonCompletion, Threshold: 1, PointsAwarded: 10}
	require.NoError(t, s.Achievements().Create(ctx, a))

	_, inserted, err := s.Achievements().Grant(ctx, "u1", a.ID, clock.Now())
	require.NoError(t, err)
	assert.True(t, inserted)

	_, inserted, err = s.Achievements().Grant(ctx, "u1", a.ID, clock.Now())
	require.NoError(t, err)
	assert.False(t, inserted)

	unnotified, err := s.Achievements().ListUnnotified(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, unnotified, 1)

	n, err := s.Achievements().MarkNotified(ctx, "u1", []string{unnotified[0].ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	unnotified, err = s.Achievements().ListUnnotified(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, unnotified)
}

func TestLeaderboard_CourseAggregation(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	add := func(user string, typ activity.Type, course string, points int) {
		clock.Set(clock.Now().Add(time.Minute))
		e, err := activity.NewEntry(user, typ, course, points)
		require.NoError(t, err)
		_, err = s.Activities().Append(ctx, e)
		require.NoError(t, err)
	}
	add("u1", activity.TypeLessonCompleted, "c1", 10)
	add("u2", activity.TypeLessonCompleted, "c1", 10)
	add("u2", activity.TypeLessonCompleted, "c2", 50)
	add("u1", activity.TypeLogin, "c1", 100)

	rows, err := s.Leaderboards().TopByCourse(ctx, "c1", activity.CourseScopedTypes, 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "u1", rows[0].UserID)
	assert.Equal(t, int64(10), rows[0].Points)
	assert.Equal(t, "u2", rows[1].UserID)

	ids, err := s.Leaderboards().CourseIDs(ctx, activity.CourseScopedTypes)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, ids)
}
