package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// CronSchedule is a standard 5-field cron expression
// (minute hour day-of-month month day-of-week) evaluated in a fixed location.
// Examples:
//   - "0 0 * * *"  - every day at midnight
//   - "0 0 * * 0"  - every Sunday at midnight
//   - "0 0 1 * *"  - first day of every month
//   - "30 * * * *" - every hour at :30
type CronSchedule struct {
	raw      string
	location *time.Location
	schedule cron.Schedule
}

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseCron parses expr. A nil location means UTC.
func ParseCron(expr string, location *time.Location) (*CronSchedule, error) {
	if location == nil {
		location = time.UTC
	}
	s, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return &CronSchedule{raw: expr, location: location, schedule: s}, nil
}

// MustParseCron is ParseCron that panics on error.
func MustParseCron(expr string, location *time.Location) *CronSchedule {
	s, err := ParseCron(expr, location)
	if err != nil {
		panic(err)
	}
	return s
}

// Next returns the first activation strictly after t, computed in the
// schedule's location.
func (c *CronSchedule) Next(t time.Time) time.Time {
	return c.schedule.Next(t.In(c.location))
}

// String returns the expression and its location.
func (c *CronSchedule) String() string {
	return fmt.Sprintf("%s (%s)", c.raw, c.location)
}
