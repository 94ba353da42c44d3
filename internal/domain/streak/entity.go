// Package streak models the consecutive-day activity streak of a user.
//
// States are no-record, active-today, active-yesterday and lapsed. RecordActivity
// is the only user-driven transition; the daily maintenance job zeroes lapsed
// streaks independently.
package streak

import (
	"time"

	"github.com/coursehub/gamification/internal/domain/shared"
	"github.com/coursehub/gamification/pkg/timeutil"
)

var (
	ErrInvalidUserID  = shared.NewDomainError("streak", "Validate", shared.ErrInvalidID, "user id is required")
	ErrStreakNotFound = shared.NewDomainError("streak", "Find", shared.ErrNotFound, "streak not found")
)

// State classifies a streak relative to a calendar day.
type State int

const (
	StateNoRecord State = iota
	StateActiveToday
	StateActiveYesterday
	StateLapsed
)

// String returns a human-readable name.
func (s State) String() string {
	switch s {
	case StateNoRecord:
		return "no_record"
	case StateActiveToday:
		return "active_today"
	case StateActiveYesterday:
		return "active_yesterday"
	case StateLapsed:
		return "lapsed"
	default:
		return "unknown"
	}
}

// Streak is one user's streak row. LastActivityDate is a calendar date
// (see timeutil.DateOf).
type Streak struct {
	ID               string
	UserID           string
	CurrentStreak    int
	LongestStreak    int
	LastActivityDate time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Start builds the row created by a user's first activity.
func Start(userID string, today time.Time) *Streak {
	return &Streak{
		UserID:           userID,
		CurrentStreak:    1,
		LongestStreak:    1,
		LastActivityDate: today,
	}
}

// Classify returns the state of s on the given day. A nil streak has no record.
func Classify(s *Streak, today time.Time) State {
	if s == nil {
		return StateNoRecord
	}
	switch timeutil.DaysBetween(s.LastActivityDate, today) {
	case 0:
		return StateActiveToday
	case 1:
		return StateActiveYesterday
	default:
		return StateLapsed
	}
}

// RecordActivity applies one day's activity and reports whether the row changed.
// Same-day calls are no-ops. A lapsed streak restarts at 1 because today counts.
func (s *Streak) RecordActivity(today time.Time) bool {
	switch Classify(s, today) {
	case StateActiveToday:
		return false
	case StateActiveYesterday:
		s.CurrentStreak++
	default:
		s.CurrentStreak = 1
	}
	s.LongestStreak = max(s.LongestStreak, s.CurrentStreak)
	s.LastActivityDate = today
	return true
}

// NeedsReset reports whether the daily job should zero the streak: the user has
// not acted today or yesterday. Zero means "not yet active today", unlike the
// lapsed branch of RecordActivity which restarts at 1.
func (s *Streak) NeedsReset(today time.Time) bool {
	return s.CurrentStreak != 0 && Classify(s, today) == StateLapsed
}

// ActiveToday reports whether the streak already counts today.
func (s *Streak) ActiveToday(today time.Time) bool {
	return Classify(s, today) == StateActiveToday
}
