package streak

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coursehub/gamification/pkg/timeutil"
)

var day0 = timeutil.Date(2024, 5, 1)

func TestClassify(t *testing.T) {
	s := Start("u1", day0)

	assert.Equal(t, StateNoRecord, Classify(nil, day0))
	assert.Equal(t, StateActiveToday, Classify(s, day0))
	assert.Equal(t, StateActiveYesterday, Classify(s, day0.AddDate(0, 0, 1)))
	assert.Equal(t, StateLapsed, Classify(s, day0.AddDate(0, 0, 2)))
	assert.Equal(t, "lapsed", StateLapsed.String())
}

func TestRecordActivity_SameDayIsNoop(t *testing.T) {
	s := Start("u1", day0)

	assert.False(t, s.RecordActivity(day0))
	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 1, s.LongestStreak)
}

func TestRecordActivity_ConsecutiveDays(t *testing.T) {
	s := Start("u1", day0)
	s.RecordActivity(day0.AddDate(0, 0, 1))
	s.RecordActivity(day0.AddDate(0, 0, 2))

	assert.Equal(t, 3, s.CurrentStreak)
	assert.Equal(t, 3, s.LongestStreak)
}

func TestRecordActivity_BrokenStreakRestartsAtOne(t *testing.T) {
	s := Start("u1", day0)
	s.RecordActivity(day0.AddDate(0, 0, 1))

	assert.True(t, s.RecordActivity(day0.AddDate(0, 0, 5)))
	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 2, s.LongestStreak)
	assert.Equal(t, day0.AddDate(0, 0, 5), s.LastActivityDate)
}

func TestRecordActivity_LongestNeverDecreases(t *testing.T) {
	s := Start("u1", day0)
	offsets := []int{1, 2, 3, 7, 8, 8, 20, 21, 22, 23, 24}

	prev := s.LongestStreak
	for _, off := range offsets {
		s.RecordActivity(day0.AddDate(0, 0, off))
		assert.GreaterOrEqual(t, s.LongestStreak, prev)
		assert.GreaterOrEqual(t, s.LongestStreak, s.CurrentStreak)
		prev = s.LongestStreak
	}
	assert.Equal(t, 5, s.CurrentStreak)
	assert.Equal(t, 5, s.LongestStreak)
}

func TestNeedsReset(t *testing.T) {
	s := Start("u1", day0)

	assert.False(t, s.NeedsReset(day0))
	assert.False(t, s.NeedsReset(day0.AddDate(0, 0, 1)))
	assert.True(t, s.NeedsReset(day0.AddDate(0, 0, 2)))

	s.CurrentStreak = 0
	assert.False(t, s.NeedsReset(day0.AddDate(0, 0, 2)))
}
