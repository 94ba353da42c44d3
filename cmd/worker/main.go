// Package main - точка входа фонового процесса (Worker) сервиса геймификации.
//
// Worker выполняет задачи обслуживания по расписанию:
//   - ежедневная проверка серий и награды за серии
//   - еженедельный и ежемесячный сброс очков
//   - прогрев кеша лидербордов и пересчёт рангов
//
// При нескольких репликах задача выполняется одной из них: блокировка
// берётся в Redis. С флагом -run задача выполняется один раз, и процесс
// завершается.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/coursehub/gamification/config"
	"github.com/coursehub/gamification/internal/application/command"
	"github.com/coursehub/gamification/internal/bootstrap"
	"github.com/coursehub/gamification/internal/infrastructure/scheduler"
	"github.com/coursehub/gamification/internal/infrastructure/scheduler/jobs"
	"github.com/coursehub/gamification/pkg/logger"
)

func main() {
	configDir := flag.String("config", ".", "directory containing an optional app.env")
	runOnce := flag.String("run", "", "run one maintenance job and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := run(ctx, *configDir, *runOnce); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configDir, runOnce string) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := bootstrap.NewLogger(cfg).With(logger.Component("worker"))
	defer func() { _ = log.Sync() }()

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ХРАНИЛИЩЕ, КЕШ, ДВИЖКИ
	// ─────────────────────────────────────────────────────────────────────────
	c, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Error("failed to release resources", logger.Err(err))
		}
	}()

	if runOnce != "" {
		return runJobOnce(ctx, c, runOnce, log)
	}
	if !cfg.Scheduler.Enabled {
		log.Warn("scheduler disabled, nothing to do")
		return nil
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	schedCfg := scheduler.Config{
		Logger:       log,
		Timezone:     cfg.App.Location,
		TickInterval: cfg.Scheduler.TickInterval,
	}
	if c.Locker != nil {
		schedCfg.Locker = c.Locker
	} else {
		log.Warn("no distributed lock, every replica runs every job")
	}
	s := scheduler.New(schedCfg)

	jobCfg := jobs.DefaultConfig()
	jobCfg.Timeout = cfg.Scheduler.JobTimeout
	registered, err := jobs.Register(s, c.App.Maintenance, cadence(cfg.Scheduler), cfg.App.Location, jobCfg, log)
	if err != nil {
		return fmt.Errorf("failed to register jobs: %w", err)
	}

	s.OnJobComplete(func(r scheduler.JobResult) {
		if r.Error != nil && !r.Skipped {
			log.Error("scheduled job failed", logger.String("job", r.JobName), logger.Err(r.Error))
		}
	})

	for _, info := range s.ListJobs() {
		log.Info("job scheduled",
			logger.String("job", info.Name),
			logger.String("schedule", info.Schedule),
			logger.Time("next_run", info.NextRun),
		)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	if err := s.Start(ctx); err != nil {
		return err
	}
	log.Info("worker is running", logger.Int("jobs", len(registered)))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("received shutdown signal")
		return s.Stop()
	})
	if err := g.Wait(); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
		return err
	}

	st := s.Stats()
	log.Info("shutdown completed successfully",
		logger.Int64("executions", st.Executions),
		logger.Int64("failures", st.Failures),
		logger.Duration("avg_duration", st.AverageDuration()),
	)
	return nil
}

func runJobOnce(ctx context.Context, c *bootstrap.Container, name string, log *logger.Logger) error {
	job, err := command.ParseJob(name)
	if err != nil {
		return err
	}
	res, err := c.App.Maintenance.Run(ctx, job)
	if err != nil {
		return fmt.Errorf("%s: %w", job, err)
	}
	log.Info("job finished",
		logger.String("job", string(res.Job)),
		logger.RowsAffected(res.RowsAffected),
		logger.Latency(res.Duration),
	)
	return nil
}

func cadence(cfg config.SchedulerConfig) jobs.Cadence {
	return jobs.Cadence{
		command.JobStreakCheck:       cfg.StreakCheck,
		command.JobStreakRewards:     cfg.StreakRewards,
		command.JobWeeklyReset:       cfg.WeeklyReset,
		command.JobMonthlyReset:      cfg.MonthlyReset,
		command.JobLeaderboardWarmup: cfg.LeaderboardWarmup,
		command.JobRankUpdate:        cfg.RankUpdate,
	}
}
