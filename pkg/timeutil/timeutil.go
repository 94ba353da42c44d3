// Package timeutil provides calendar-day arithmetic in a configured location.
//
// Calendar dates (streak days) are carried as time.Time values at midnight UTC that hold
// the civil year/month/day observed in the configured location. Instants (ledger
// timestamps, window boundaries) stay ordinary time.Time values.
package timeutil

import (
	"fmt"
	"sync"
	"time"
)

// Clock supplies the current instant and the location used for calendar-day decisions.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

// SystemClock reads the wall clock.
type SystemClock struct {
	loc *time.Location
}

// NewSystemClock returns a wall clock evaluated in loc (UTC when nil).
func NewSystemClock(loc *time.Location) *SystemClock {
	if loc == nil {
		loc = time.UTC
	}
	return &SystemClock{loc: loc}
}

func (c *SystemClock) Now() time.Time           { return time.Now().In(c.loc) }
func (c *SystemClock) Location() *time.Location { return c.loc }

// FixedClock is a manually driven clock.
type FixedClock struct {
	mu  sync.RWMutex
	now time.Time
	loc *time.Location
}

// NewFixedClock returns a clock frozen at now.
func NewFixedClock(now time.Time, loc *time.Location) *FixedClock {
	if loc == nil {
		loc = time.UTC
	}
	return &FixedClock{now: now, loc: loc}
}

func (c *FixedClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now.In(c.loc)
}

func (c *FixedClock) Location() *time.Location { return c.loc }

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// AddDays moves the clock forward by n calendar days.
func (c *FixedClock) AddDays(n int) {
	c.mu.Lock()
	c.now = c.now.AddDate(0, 0, n)
	c.mu.Unlock()
}

// LoadLocation resolves an IANA zone name. Empty means UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
	}
	return loc, nil
}

// DateOf returns the calendar date of t as observed in loc.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Date builds a calendar date value.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Today returns the clock's current calendar date.
func Today(c Clock) time.Time {
	return DateOf(c.Now(), c.Location())
}

// Yesterday returns the calendar date before Today.
func Yesterday(c Clock) time.Time {
	return Today(c).AddDate(0, 0, -1)
}

// SameDate reports whether two calendar dates are equal.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DaysBetween returns b - a in whole calendar days.
func DaysBetween(a, b time.Time) int {
	a = Date(a.Date())
	b = Date(b.Date())
	return int(b.Sub(a).Hours() / 24)
}

// StartOfDay returns the instant of local midnight for the day containing t.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// StartOfWeek returns local midnight of the Monday starting t's week.
func StartOfWeek(t time.Time, loc *time.Location) time.Time {
	day := StartOfDay(t, loc)
	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return day.AddDate(0, 0, -(weekday - 1))
}

// StartOfMonth returns local midnight of the first day of t's month.
func StartOfMonth(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
}

// FormatDate renders a calendar date as YYYY-MM-DD.
func FormatDate(d time.Time) string {
	return d.Format(time.DateOnly)
}
