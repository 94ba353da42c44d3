// Package jobs adapts the maintenance handler to scheduler jobs.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/coursehub/gamification/internal/application/command"
	"github.com/coursehub/gamification/internal/domain/shared"
	"github.com/coursehub/gamification/pkg/logger"
	"github.com/coursehub/gamification/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAINTENANCE JOB
// ══════════════════════════════════════════════════════════════════════════════

// Runner executes one maintenance job. *command.MaintenanceHandler implements it.
type Runner interface {
	Run(ctx context.Context, job command.Job) (*command.MaintenanceResult, error)
}

var descriptions = map[command.Job]string{
	command.JobStreakCheck:       "Resets streaks of users who missed a calendar day",
	command.JobStreakRewards:     "Awards maintain-streak points to users active yesterday",
	command.JobWeeklyReset:       "Zeroes weekly points; total points are kept",
	command.JobMonthlyReset:      "Zeroes monthly points; total points are kept",
	command.JobLeaderboardWarmup: "Precomputes the first leaderboard page of every scope",
	command.JobRankUpdate:        "Stores each user's global rank",
}

// Config contains per-job settings.
type Config struct {
	// Timeout bounds one attempt. Zero means no timeout.
	Timeout time.Duration

	// Retrier re-runs attempts that failed on storage errors.
	// Nil means a single attempt.
	Retrier *retry.Retrier
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout: 10 * time.Minute,
		Retrier: retry.JobRetrier(retry.WithRetryIf(IsTransient)),
	}
}

// MaintenanceJob runs one command.Job on a schedule.
type MaintenanceJob struct {
	job    command.Job
	runner Runner
	config Config
	logger *logger.Logger

	last atomic.Pointer[command.MaintenanceResult]
}

// NewMaintenanceJob creates a MaintenanceJob.
func NewMaintenanceJob(job command.Job, runner Runner, cfg Config, log *logger.Logger) *MaintenanceJob {
	if log == nil {
		log = logger.Nop()
	}
	return &MaintenanceJob{
		job:    job,
		runner: runner,
		config: cfg,
		logger: log.With(logger.Component("jobs"), logger.String("job", string(job))),
	}
}

// Name returns the job name.
func (j *MaintenanceJob) Name() string {
	return string(j.job)
}

// Description returns a human-readable description.
func (j *MaintenanceJob) Description() string {
	if d, ok := descriptions[j.job]; ok {
		return d
	}
	return string(j.job)
}

// LastResult returns the result of the last successful run, or nil.
func (j *MaintenanceJob) LastResult() *command.MaintenanceResult {
	return j.last.Load()
}

// Run executes the job, retrying storage failures.
func (j *MaintenanceJob) Run(ctx context.Context) error {
	attempt := 0
	op := func(ctx context.Context) error {
		attempt++
		if j.config.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
			defer cancel()
		}
		res, err := j.runner.Run(ctx, j.job)
		if err != nil {
			return err
		}
		j.last.Store(res)
		return nil
	}

	var err error
	if j.config.Retrier == nil {
		err = op(ctx)
	} else {
		err = j.config.Retrier.Do(ctx, op)
	}
	if err != nil {
		return fmt.Errorf("%s after %d attempt(s): %w", j.job, attempt, err)
	}
	return nil
}

// IsTransient reports whether a job error is worth another attempt.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || shared.IsValidation(err) {
		return false
	}
	return errors.Is(err, shared.ErrStorage) ||
		errors.Is(err, context.DeadlineExceeded) ||
		shared.IsRetryable(err)
}
