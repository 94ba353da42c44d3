// Package stats holds the per-user aggregate counters and the atomic increment
// contract every store implements.
package stats

import (
	"time"

	"github.com/coursehub/gamification/internal/domain/shared"
)

var (
	ErrStatsNotFound = shared.NewDomainError("stats", "Find", shared.ErrNotFound, "user stats not found")
	ErrInvalidUserID = shared.NewDomainError("stats", "Validate", shared.ErrInvalidID, "user id is required")
	ErrInvalidField  = shared.NewDomainError("stats", "Validate", shared.ErrInvalidInput, "unknown counter field")
	ErrNegativeDelta = shared.NewDomainError("stats", "Validate", shared.ErrNegativeValue, "increment must be non-negative")
	ErrNotResettable = shared.NewDomainError("stats", "Reset", shared.ErrInvalidInput, "only weekly and monthly points can be reset")
)

// UserStats is the aggregate row for one user.
type UserStats struct {
	ID               string
	UserID           string
	TotalPoints      int64
	WeeklyPoints     int64
	MonthlyPoints    int64
	Rank             *int // cached by the rank maintenance job; GetUserStats overrides it
	LessonsCompleted int64
	CoursesCompleted int64
	TotalTimeSpent   int64 // seconds
	LastUpdated      time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Field names an incrementable counter column.
type Field string

const (
	FieldTotalPoints      Field = "total_points"
	FieldWeeklyPoints     Field = "weekly_points"
	FieldMonthlyPoints    Field = "monthly_points"
	FieldLessonsCompleted Field = "lessons_completed"
	FieldCoursesCompleted Field = "courses_completed"
	FieldTotalTimeSpent   Field = "total_time_spent"
)

// Fields lists every counter. Stores use it as a column whitelist.
var Fields = []Field{
	FieldTotalPoints,
	FieldWeeklyPoints,
	FieldMonthlyPoints,
	FieldLessonsCompleted,
	FieldCoursesCompleted,
	FieldTotalTimeSpent,
}

// IsValid reports whether f is a known counter.
func (f Field) IsValid() bool {
	for _, known := range Fields {
		if f == known {
			return true
		}
	}
	return false
}

// IsPoints reports whether f is one of the point buckets.
func (f Field) IsPoints() bool {
	return f == FieldTotalPoints || f == FieldWeeklyPoints || f == FieldMonthlyPoints
}

// IsResettable reports whether the periodic reset jobs may zero f.
func (f Field) IsResettable() bool {
	return f == FieldWeeklyPoints || f == FieldMonthlyPoints
}

// Column returns the storage column name.
func (f Field) Column() string { return string(f) }

// FieldDelta is one "add delta to field" instruction.
type FieldDelta struct {
	Field Field
	Delta int64
}

// PointDeltas returns the deltas applied by a points award: every bucket grows by p.
func PointDeltas(p int) []FieldDelta {
	d := int64(p)
	return []FieldDelta{
		{Field: FieldTotalPoints, Delta: d},
		{Field: FieldWeeklyPoints, Delta: d},
		{Field: FieldMonthlyPoints, Delta: d},
	}
}

// ValidateDeltas checks an increment request.
func ValidateDeltas(userID string, deltas []FieldDelta) error {
	if userID == "" {
		return ErrInvalidUserID
	}
	for _, d := range deltas {
		if !d.Field.IsValid() {
			return ErrInvalidField
		}
		if d.Delta < 0 {
			return ErrNegativeDelta
		}
	}
	return nil
}

// Get returns the current value of a counter.
func (s *UserStats) Get(f Field) int64 {
	switch f {
	case FieldTotalPoints:
		return s.TotalPoints
	case FieldWeeklyPoints:
		return s.WeeklyPoints
	case FieldMonthlyPoints:
		return s.MonthlyPoints
	case FieldLessonsCompleted:
		return s.LessonsCompleted
	case FieldCoursesCompleted:
		return s.CoursesCompleted
	case FieldTotalTimeSpent:
		return s.TotalTimeSpent
	}
	return 0
}

// Apply adds deltas in place and reports whether any point bucket changed.
// Only in-process stores use it; SQL stores express the same add in the upsert.
func (s *UserStats) Apply(deltas []FieldDelta) (pointsChanged bool) {
	for _, d := range deltas {
		switch d.Field {
		case FieldTotalPoints:
			s.TotalPoints += d.Delta
		case FieldWeeklyPoints:
			s.WeeklyPoints += d.Delta
		case FieldMonthlyPoints:
			s.MonthlyPoints += d.Delta
		case FieldLessonsCompleted:
			s.LessonsCompleted += d.Delta
		case FieldCoursesCompleted:
			s.CoursesCompleted += d.Delta
		case FieldTotalTimeSpent:
			s.TotalTimeSpent += d.Delta
		}
		if d.Field.IsPoints() && d.Delta != 0 {
			pointsChanged = true
		}
	}
	return pointsChanged
}

// TouchesPoints reports whether any delta changes a point bucket.
func TouchesPoints(deltas []FieldDelta) bool {
	for _, d := range deltas {
		if d.Field.IsPoints() && d.Delta != 0 {
			return true
		}
	}
	return false
}

// CompetitionRank is 1 + the number of users strictly ahead.
func CompetitionRank(usersAhead int64) int {
	return int(usersAhead) + 1
}
