package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursehub/gamification/pkg/logger"
)

type countingJob struct {
	name string
	runs atomic.Int32
	err  error
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "test job " + j.name }
func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return j.err
}

// everyTick is due on every check.
type everyTick struct{}

func (everyTick) Next(t time.Time) time.Time { return t.Add(time.Millisecond) }
func (everyTick) String() string             { return "every tick" }

type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *memLocker) TryLock(_ context.Context, resource string) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[resource] {
		return nil, false, nil
	}
	l.held[resource] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, resource)
		return nil
	}, true, nil
}

func newTestScheduler(locker Locker) *Scheduler {
	return New(Config{
		Logger:       logger.Nop(),
		Locker:       locker,
		TickInterval: 5 * time.Millisecond,
	})
}

func TestRegister(t *testing.T) {
	s := newTestScheduler(nil)
	job := &countingJob{name: "a"}

	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))
	assert.ErrorIs(t, s.Register(job, NewIntervalSchedule(time.Hour)), ErrJobAlreadyExists)
	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Hour)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&countingJob{name: "b"}, nil), ErrNilSchedule)

	info, err := s.GetJobInfo("a")
	require.NoError(t, err)
	assert.Equal(t, "@every 1h0m0s", info.Schedule)
	assert.True(t, info.Enabled)

	require.NoError(t, s.Unregister("a"))
	assert.ErrorIs(t, s.Unregister("a"), ErrJobNotFound)
}

func TestRunNow(t *testing.T) {
	s := newTestScheduler(nil)
	ok := &countingJob{name: "ok"}
	bad := &countingJob{name: "bad", err: errors.New("boom")}
	require.NoError(t, s.Register(ok, NewIntervalSchedule(time.Hour)))
	require.NoError(t, s.Register(bad, NewIntervalSchedule(time.Hour)))

	res, err := s.RunNow(context.Background(), "ok")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Manual)

	_, err = s.RunNow(context.Background(), "bad")
	assert.EqualError(t, err, "boom")

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	st := s.Stats()
	assert.Equal(t, int64(2), st.Executions)
	assert.Equal(t, int64(1), st.Failures)
	assert.InDelta(t, 0.5, st.SuccessRate(), 1e-9)
	assert.Len(t, s.GetHistory(0), 2)
	assert.Len(t, s.GetHistory(1), 1)
}

func TestRunNow_SkippedWhenLocked(t *testing.T) {
	locker := &memLocker{held: map[string]bool{"job:x": true}}
	s := newTestScheduler(locker)
	job := &countingJob{name: "x"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	res, err := s.RunNow(context.Background(), "x")
	assert.ErrorIs(t, err, ErrJobLocked)
	assert.True(t, res.Skipped)
	assert.Zero(t, job.runs.Load())
	assert.Zero(t, s.Stats().Executions)
	assert.Zero(t, s.Stats().SuccessRate())
}

func TestStartStop_RunsDueJobs(t *testing.T) {
	locker := &memLocker{held: map[string]bool{}}
	s := newTestScheduler(locker)
	job := &countingJob{name: "tick"}
	require.NoError(t, s.Register(job, everyTick{}))

	done := make(chan JobResult, 16)
	s.OnJobComplete(func(r JobResult) {
		select {
		case done <- r:
		default:
		}
	})

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)
	assert.True(t, s.IsRunning())

	select {
	case r := <-done:
		assert.True(t, r.Success)
	case <-time.After(2 * time.Second):
		t.Fatal("job never ran")
	}

	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
	assert.GreaterOrEqual(t, job.runs.Load(), int32(1))
	assert.Empty(t, locker.held)
}

func TestDisabledJobDoesNotRun(t *testing.T) {
	s := newTestScheduler(nil)
	job := &countingJob{name: "off"}
	require.NoError(t, s.Register(job, everyTick{}))
	require.NoError(t, s.DisableJob("off"))

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, s.Stop())

	assert.Zero(t, job.runs.Load())
	assert.ErrorIs(t, s.EnableJob("missing"), ErrJobNotFound)
}

func TestParseCron(t *testing.T) {
	almaty := time.FixedZone("UTC+5", 5*3600)
	s, err := ParseCron("0 0 * * *", almaty)
	require.NoError(t, err)

	from := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	next := s.Next(from)
	assert.True(t, next.Equal(time.Date(2024, 3, 1, 19, 0, 0, 0, time.UTC)), next)

	weekly := MustParseCron("0 0 * * 0", time.UTC)
	assert.Equal(t, time.Sunday, weekly.Next(from).Weekday())

	monthly := MustParseCron("0 0 1 * *", time.UTC)
	assert.True(t, monthly.Next(from).Equal(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)))

	_, err = ParseCron("61 * * * *", nil)
	assert.Error(t, err)
	_, err = ParseCron("* * * *", nil)
	assert.Error(t, err)
}

func TestParseSchedule(t *testing.T) {
	s, err := ParseSchedule("15m", time.UTC)
	require.NoError(t, err)
	assert.IsType(t, &IntervalSchedule{}, s)

	s, err = ParseSchedule("30 * * * *", time.UTC)
	require.NoError(t, err)
	assert.IsType(t, &CronSchedule{}, s)

	_, err = ParseSchedule("-5m", time.UTC)
	assert.Error(t, err)

	assert.Equal(t, time.Second, NewIntervalSchedule(time.Millisecond).Interval)
}
