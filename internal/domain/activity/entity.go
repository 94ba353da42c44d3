// Package activity contains the append-only point ledger: one immutable entry per
// point-earning action. This is a pure domain layer with zero external dependencies.
package activity

import (
	"slices"
	"time"

	"github.com/coursehub/gamification/internal/domain/shared"
)

// Domain errors for activity package.
var (
	ErrInvalidUserID = shared.NewDomainError("activity", "Validate", shared.ErrInvalidID, "user id is required")
	ErrInvalidType   = shared.NewDomainError("activity", "Validate", shared.ErrInvalidInput, "unknown activity type")
	ErrInvalidPoints = shared.NewDomainError("activity", "Validate", shared.ErrNegativeValue, "points must be non-negative")
)

// Type identifies the kind of point-earning action.
type Type string

const (
	TypeLessonProgress  Type = "lesson_progress"
	TypeLessonCompleted Type = "lesson_completed"
	TypeCourseCompleted Type = "course_completed"
	TypeCourseEnrolled  Type = "course_enrolled"
	TypeLogin           Type = "login"
	TypeEarnAchievement Type = "earn_achievement"
	TypeMaintainStreak  Type = "maintain_streak"
)

// AllTypes lists every ledger entry type in declaration order.
var AllTypes = []Type{
	TypeLessonProgress,
	TypeLessonCompleted,
	TypeCourseCompleted,
	TypeCourseEnrolled,
	TypeLogin,
	TypeEarnAchievement,
	TypeMaintainStreak,
}

// CourseScopedTypes are the entry types that count toward a course leaderboard.
var CourseScopedTypes = []Type{
	TypeLessonProgress,
	TypeLessonCompleted,
	TypeCourseCompleted,
}

// SelfReportedTypes are the entry types a learner's client may report. The
// rest are written by the service itself: achievement awards, streak rewards
// and first course completions.
var SelfReportedTypes = []Type{
	TypeLessonProgress,
	TypeLessonCompleted,
	TypeCourseEnrolled,
	TypeLogin,
}

// IsSelfReported reports whether clients may submit t directly.
func (t Type) IsSelfReported() bool {
	return slices.Contains(SelfReportedTypes, t)
}

// IsValid reports whether t is a known type.
func (t Type) IsValid() bool {
	for _, known := range AllTypes {
		if t == known {
			return true
		}
	}
	return false
}

// String returns the string representation of the type.
func (t Type) String() string {
	return string(t)
}

// ParseType converts a wire value into a Type.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.IsValid() {
		return "", ErrInvalidType
	}
	return t, nil
}

// DefaultPoints returns the standard award for an activity type.
func DefaultPoints(t Type) int {
	switch t {
	case TypeLessonProgress:
		return 5
	case TypeLessonCompleted:
		return 10
	case TypeCourseCompleted:
		return 100
	case TypeCourseEnrolled:
		return 5
	case TypeLogin:
		return 1
	case TypeEarnAchievement:
		return 20
	case TypeMaintainStreak:
		return 5
	default:
		return 0
	}
}

// Entry is one immutable fact in the ledger.
type Entry struct {
	ID        string
	UserID    string
	Type      Type
	EntityID  string // empty when the action has no related entity
	Points    int
	CreatedAt time.Time
}

// NewEntry validates and builds an entry. ID and CreatedAt are assigned by the store
// when left empty.
func NewEntry(userID string, t Type, entityID string, points int) (*Entry, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	if !t.IsValid() {
		return nil, ErrInvalidType
	}
	if points < 0 {
		return nil, ErrInvalidPoints
	}
	return &Entry{
		UserID:   userID,
		Type:     t,
		EntityID: entityID,
		Points:   points,
	}, nil
}

// HasEntity reports whether the entry references an entity.
func (e *Entry) HasEntity() bool {
	return e.EntityID != ""
}
