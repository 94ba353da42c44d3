package jobs

import (
	"fmt"
	"time"

	"github.com/coursehub/gamification/internal/application/command"
	"github.com/coursehub/gamification/internal/infrastructure/scheduler"
	"github.com/coursehub/gamification/pkg/logger"
)

// Cadence maps each maintenance job to a cron expression or Go duration.
// An empty entry leaves the job unscheduled.
type Cadence map[command.Job]string

// DefaultCadence returns the production schedule.
func DefaultCadence() Cadence {
	return Cadence{
		command.JobStreakCheck:       "0 0 * * *",
		command.JobStreakRewards:     "5 0 * * *",
		command.JobWeeklyReset:       "0 0 * * 0",
		command.JobMonthlyReset:      "0 0 1 * *",
		command.JobLeaderboardWarmup: "0 * * * *",
		command.JobRankUpdate:        "30 * * * *",
	}
}

// Register adds every scheduled maintenance job to s. Schedules are evaluated
// in location so that "midnight" matches the calendar day used for streaks.
func Register(
	s *scheduler.Scheduler,
	runner Runner,
	cadence Cadence,
	location *time.Location,
	cfg Config,
	log *logger.Logger,
) ([]*MaintenanceJob, error) {
	registered := make([]*MaintenanceJob, 0, len(command.Jobs))
	for _, job := range command.Jobs {
		expr, ok := cadence[job]
		if !ok || expr == "" {
			continue
		}
		schedule, err := scheduler.ParseSchedule(expr, location)
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", job, err)
		}
		mj := NewMaintenanceJob(job, runner, cfg, log)
		if err := s.Register(mj, schedule); err != nil {
			return nil, err
		}
		registered = append(registered, mj)
	}
	return registered, nil
}
