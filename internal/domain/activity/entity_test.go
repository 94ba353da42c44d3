package activity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursehub/gamification/internal/domain/shared"
)

func TestDefaultPoints(t *testing.T) {
	cases := map[Type]int{
		TypeLessonProgress:  5,
		TypeLessonCompleted: 10,
		TypeCourseCompleted: 100,
		TypeCourseEnrolled:  5,
		TypeLogin:           1,
		TypeEarnAchievement: 20,
		TypeMaintainStreak:  5,
	}
	for typ, want := range cases {
		assert.Equal(t, want, DefaultPoints(typ), typ)
	}
	assert.Len(t, cases, len(AllTypes))
	assert.Zero(t, DefaultPoints(Type("bogus")))
}

func TestParseType(t *testing.T) {
	typ, err := ParseType("lesson_completed")
	require.NoError(t, err)
	assert.Equal(t, TypeLessonCompleted, typ)

	_, err = ParseType("LessonCompleted")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestIsSelfReported(t *testing.T) {
	for _, typ := range []Type{TypeLessonProgress, TypeLessonCompleted, TypeCourseEnrolled, TypeLogin} {
		assert.True(t, typ.IsSelfReported(), typ)
	}
	for _, typ := range []Type{TypeCourseCompleted, TypeEarnAchievement, TypeMaintainStreak, Type("bogus")} {
		assert.False(t, typ.IsSelfReported(), typ)
	}
}

func TestNewEntry(t *testing.T) {
	e, err := NewEntry("u1", TypeCourseCompleted, "c1", 100)
	require.NoError(t, err)
	assert.True(t, e.HasEntity())
	assert.Empty(t, e.ID)

	_, err = NewEntry("", TypeLogin, "", 1)
	assert.True(t, shared.IsValidation(err))

	_, err = NewEntry("u1", TypeLogin, "", -1)
	assert.ErrorIs(t, err, shared.ErrNegativeValue)
}

func TestCourseCompletionPoints(t *testing.T) {
	assert.Equal(t, 150, CourseCompletionPoints(LevelBeginner, 5))
	assert.Equal(t, 350, CourseCompletionPoints(LevelIntermediate, 12))
	assert.Equal(t, 500, CourseCompletionPoints(LevelAdvanced, 30))
	assert.Equal(t, 100, CourseCompletionPoints(CourseLevel("unknown"), 0))
	assert.Equal(t, 100, CourseCompletionPoints(LevelBeginner, -4))
}
