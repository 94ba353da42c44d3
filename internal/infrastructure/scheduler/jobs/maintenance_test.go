package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursehub/gamification/internal/application/command"
	"github.com/coursehub/gamification/internal/domain/shared"
	"github.com/coursehub/gamification/internal/infrastructure/scheduler"
	"github.com/coursehub/gamification/pkg/logger"
	"github.com/coursehub/gamification/pkg/retry"
)

type fakeRunner struct {
	calls []command.Job
	errs  []error
}

func (f *fakeRunner) Run(_ context.Context, job command.Job) (*command.MaintenanceResult, error) {
	f.calls = append(f.calls, job)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &command.MaintenanceResult{Job: job, RowsAffected: 7}, nil
}

func fastConfig() Config {
	return Config{
		Timeout: time.Second,
		Retrier: retry.JobRetrier(
			retry.WithRetryIf(IsTransient),
			retry.WithInitialDelay(time.Millisecond),
			retry.WithMaxDelay(time.Millisecond),
		),
	}
}

func TestMaintenanceJob_RetriesStorageFailures(t *testing.T) {
	runner := &fakeRunner{errs: []error{
		shared.StorageError("stats", "Reset", errors.New("conn reset")),
		nil,
	}}
	job := NewMaintenanceJob(command.JobWeeklyReset, runner, fastConfig(), logger.Nop())

	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, runner.calls, 2)
	require.NotNil(t, job.LastResult())
	assert.Equal(t, int64(7), job.LastResult().RowsAffected)
	assert.Equal(t, "weekly_reset", job.Name())
	assert.NotEmpty(t, job.Description())
}

func TestMaintenanceJob_DoesNotRetryValidation(t *testing.T) {
	runner := &fakeRunner{errs: []error{
		shared.NewDomainError("maintenance", "Run", shared.ErrInvalidInput, "unknown job"),
	}}
	job := NewMaintenanceJob(command.JobRankUpdate, runner, fastConfig(), logger.Nop())

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
	assert.Len(t, runner.calls, 1)
	assert.Nil(t, job.LastResult())
}

func TestMaintenanceJob_GivesUpAfterMaxAttempts(t *testing.T) {
	storage := shared.StorageError("streak", "ResetLapsed", errors.New("timeout"))
	runner := &fakeRunner{errs: []error{storage, storage, storage, storage}}
	job := NewMaintenanceJob(command.JobStreakCheck, runner, fastConfig(), logger.Nop())

	err := job.Run(context.Background())
	assert.ErrorIs(t, err, shared.ErrStorage)
	assert.Len(t, runner.calls, 3)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(context.Canceled))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(shared.StorageError("x", "y", errors.New("z"))))
	assert.False(t, IsTransient(errors.New("plain")))
}

func TestRegister_DefaultCadence(t *testing.T) {
	s := scheduler.New(scheduler.Config{Logger: logger.Nop()})
	runner := &fakeRunner{}

	registered, err := Register(s, runner, DefaultCadence(), time.UTC, fastConfig(), logger.Nop())
	require.NoError(t, err)
	assert.Len(t, registered, len(command.Jobs))

	infos := s.ListJobs()
	require.Len(t, infos, len(command.Jobs))
	assert.Equal(t, "leaderboard_warmup", infos[0].Name)

	res, err := s.RunNow(context.Background(), string(command.JobStreakRewards))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []command.Job{command.JobStreakRewards}, runner.calls)
}

func TestRegister_SkipsEmptyAndRejectsInvalid(t *testing.T) {
	s := scheduler.New(scheduler.Config{Logger: logger.Nop()})
	cadence := Cadence{command.JobRankUpdate: "10m", command.JobWeeklyReset: ""}

	registered, err := Register(s, &fakeRunner{}, cadence, time.UTC, fastConfig(), nil)
	require.NoError(t, err)
	assert.Len(t, registered, 1)

	_, err = Register(scheduler.New(scheduler.Config{}), &fakeRunner{},
		Cadence{command.JobStreakCheck: "not a cron"}, time.UTC, fastConfig(), nil)
	assert.Error(t, err)
}
