// Package scheduler runs the gamification maintenance jobs on cron and interval
// schedules. When a Locker is configured, each run first takes a distributed
// lock so that only one worker replica executes a given job.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/coursehub/gamification/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONTRACTS
// ══════════════════════════════════════════════════════════════════════════════

// Job is one unit of scheduled work. Run receives a context that is cancelled
// when the scheduler stops.
type Job interface {
	Name() string
	Description() string
	Run(ctx context.Context) error
}

// Schedule yields the next activation strictly after t.
type Schedule interface {
	Next(t time.Time) time.Time
	String() string
}

// Locker guards a job run across processes.
type Locker interface {
	// TryLock returns ok=false without error when another owner holds the lock.
	TryLock(ctx context.Context, resource string) (release func(context.Context) error, ok bool, err error)
}

var (
	ErrNilJob           = errors.New("job cannot be nil")
	ErrNilSchedule      = errors.New("schedule cannot be nil")
	ErrJobAlreadyExists = errors.New("job already exists")
	ErrJobNotFound      = errors.New("job not found")

	// ErrJobLocked is returned by RunNow when another replica holds the job lock.
	ErrJobLocked = errors.New("job is running elsewhere")

	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")
	ErrSchedulerNotRunning     = errors.New("scheduler is not running")
)

// JobResult describes one run attempt. Skipped runs lost the lock to another
// replica and did not execute.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Skipped     bool
	Manual      bool
	Error       error
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Config for New. Zero values fall back to defaults.
type Config struct {
	Logger *logger.Logger

	// Timezone for schedule calculations (default: UTC).
	Timezone *time.Location

	// Locker is optional. Without it every replica runs every job.
	Locker Locker

	// TickInterval is how often due jobs are checked (default: 1s).
	TickInterval time.Duration

	// MaxHistorySize bounds GetHistory (default: 1000).
	MaxHistorySize int

	Now func() time.Time
}

type entry struct {
	job      Job
	schedule Schedule
	enabled  bool
	inFlight bool
	lastRun  time.Time
	nextRun  time.Time
	runs     int64
	failures int64
	last     *JobResult
}

// Scheduler owns the registered jobs and the tick loop.
type Scheduler struct {
	log     *logger.Logger
	loc     *time.Location
	locker  Locker
	tick    time.Duration
	now     func() time.Time
	maxHist int

	mu        sync.RWMutex
	jobs      map[string]*entry
	running   bool
	cancel    context.CancelFunc
	startedAt time.Time
	history   []JobResult
	totals    Stats
	onResult  func(JobResult)

	wg sync.WaitGroup
}

// New creates a stopped scheduler.
func New(cfg Config) *Scheduler {
	s := &Scheduler{
		log:     logger.Default(),
		loc:     time.UTC,
		locker:  cfg.Locker,
		tick:    time.Second,
		now:     time.Now,
		maxHist: 1000,
		jobs:    make(map[string]*entry),
	}
	if cfg.Logger != nil {
		s.log = cfg.Logger
	}
	s.log = s.log.With(logger.Component("scheduler"))
	if cfg.Timezone != nil {
		s.loc = cfg.Timezone
	}
	if cfg.TickInterval > 0 {
		s.tick = cfg.TickInterval
	}
	if cfg.Now != nil {
		s.now = cfg.Now
	}
	if cfg.MaxHistorySize > 0 {
		s.maxHist = cfg.MaxHistorySize
	}
	return s
}

func (s *Scheduler) clock() time.Time {
	return s.now().In(s.loc)
}

// lookup must be called with mu held.
func (s *Scheduler) lookup(name string) (*entry, error) {
	e, ok := s.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return e, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// Register adds an enabled job. Names must be unique.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	switch {
	case job == nil:
		return ErrNilJob
	case schedule == nil:
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}
	e := &entry{job: job, schedule: schedule, enabled: true, nextRun: schedule.Next(s.clock())}
	s.jobs[name] = e

	s.log.Info("job registered",
		logger.String("job", name),
		logger.String("schedule", schedule.String()),
		logger.Time("next_run", e.nextRun),
	)
	return nil
}

func (s *Scheduler) Unregister(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lookup(name); err != nil {
		return err
	}
	delete(s.jobs, name)
	return nil
}

// EnableJob re-enables a job; its next run is computed from now.
func (s *Scheduler) EnableJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(name)
	if err != nil {
		return err
	}
	e.enabled = true
	e.nextRun = e.schedule.Next(s.clock())
	return nil
}

func (s *Scheduler) DisableJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(name)
	if err != nil {
		return err
	}
	e.enabled = false
	return nil
}

// OnJobComplete sets a hook called after every run, skipped ones included.
func (s *Scheduler) OnJobComplete(fn func(result JobResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onResult = fn
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start launches the tick loop. Jobs run with contexts derived from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.startedAt = s.now()
	count := len(s.jobs)
	s.mu.Unlock()

	s.log.Info("scheduler started", logger.Int("jobs_count", count))

	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("scheduler stopped", logger.Duration("uptime", s.now().Sub(s.startedAt)))
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.dispatch(ctx)
		}
	}
}

// dispatch advances nextRun of every due job before launching it, so a slow
// job is never started twice for the same activation.
func (s *Scheduler) dispatch(ctx context.Context) {
	now := s.clock()

	s.mu.Lock()
	var due []*entry
	for _, e := range s.jobs {
		if !e.enabled || e.inFlight || e.nextRun.IsZero() || now.Before(e.nextRun) {
			continue
		}
		e.inFlight = true
		e.lastRun = now
		e.nextRun = e.schedule.Next(now)
		e.runs++
		due = append(due, e)
	}
	s.mu.Unlock()

	for _, e := range due {
		e := e
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.execute(ctx, e, false)

			s.mu.Lock()
			e.inFlight = false
			s.mu.Unlock()
		}()
	}
}

// execute runs one job under the optional lock and records the result.
func (s *Scheduler) execute(ctx context.Context, e *entry, manual bool) JobResult {
	name := e.job.Name()
	log := s.log.With(logger.String("job", name))
	res := JobResult{JobName: name, StartedAt: s.now(), Manual: manual}

	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx, "job:"+name)
		switch {
		case err != nil:
			res.Error = fmt.Errorf("acquire lock: %w", err)
			return s.record(log, e, res)
		case !ok:
			res.Skipped = true
			log.Debug("job skipped, lock held elsewhere")
			return s.record(log, e, res)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("release job lock", logger.Err(err))
			}
		}()
	}

	log.Info("job started", logger.Bool("manual", manual))
	res.Error = e.job.Run(ctx)
	res.Success = res.Error == nil
	return s.record(log, e, res)
}

func (s *Scheduler) record(log *logger.Logger, e *entry, res JobResult) JobResult {
	res.CompletedAt = s.now()
	res.Duration = res.CompletedAt.Sub(res.StartedAt)

	s.mu.Lock()
	e.last = &res
	if !res.Skipped {
		s.totals.add(res)
		if !res.Success {
			e.failures++
		}
	}
	s.history = append(s.history, res)
	if over := len(s.history) - s.maxHist; over > 0 {
		s.history = slices.Delete(s.history, 0, over)
	}
	hook := s.onResult
	s.mu.Unlock()

	switch {
	case res.Skipped:
	case res.Error != nil:
		log.Error("job failed", logger.Latency(res.Duration), logger.Err(res.Error))
	default:
		log.Info("job completed", logger.Latency(res.Duration))
	}
	if hook != nil {
		hook(res)
	}
	return res
}

// RunNow executes a job immediately, ignoring its schedule and enabled flag.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*JobResult, error) {
	s.mu.RLock()
	e, err := s.lookup(name)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	res := s.execute(ctx, e, true)
	if res.Skipped {
		return &res, ErrJobLocked
	}
	return &res, res.Error
}

// ══════════════════════════════════════════════════════════════════════════════
// INTROSPECTION
// ══════════════════════════════════════════════════════════════════════════════

// JobInfo is a read-only view of a registered job.
type JobInfo struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Enabled     bool       `json:"enabled"`
	Schedule    string     `json:"schedule"`
	LastRun     time.Time  `json:"last_run"`
	NextRun     time.Time  `json:"next_run"`
	RunCount    int64      `json:"run_count"`
	FailCount   int64      `json:"fail_count"`
	LastResult  *JobResult `json:"-"`
}

func (e *entry) info() JobInfo {
	return JobInfo{
		Name:        e.job.Name(),
		Description: e.job.Description(),
		Enabled:     e.enabled,
		Schedule:    e.schedule.String(),
		LastRun:     e.lastRun,
		NextRun:     e.nextRun,
		RunCount:    e.runs,
		FailCount:   e.failures,
		LastResult:  e.last,
	}
}

// ListJobs returns every registered job sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for _, e := range s.jobs {
		infos = append(infos, e.info())
	}
	slices.SortFunc(infos, func(a, b JobInfo) int { return strings.Compare(a.Name, b.Name) })
	return infos
}

func (s *Scheduler) GetJobInfo(name string) (*JobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	info := e.info()
	return &info, nil
}

// GetHistory returns up to limit most recent results, oldest first.
// limit <= 0 returns everything kept.
func (s *Scheduler) GetHistory(limit int) []JobResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	return slices.Clone(s.history[len(s.history)-limit:])
}

// Stats aggregates executed (not skipped) runs since New.
type Stats struct {
	Executions    int64         `json:"executions"`
	Failures      int64         `json:"failures"`
	TotalDuration time.Duration `json:"total_duration_ns"`
}

func (st *Stats) add(res JobResult) {
	st.Executions++
	st.TotalDuration += res.Duration
	if !res.Success {
		st.Failures++
	}
}

// SuccessRate is 0 before the first execution.
func (st Stats) SuccessRate() float64 {
	if st.Executions == 0 {
		return 0
	}
	return float64(st.Executions-st.Failures) / float64(st.Executions)
}

func (st Stats) AverageDuration() time.Duration {
	if st.Executions == 0 {
		return 0
	}
	return st.TotalDuration / time.Duration(st.Executions)
}

func (s *Scheduler) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totals
}
