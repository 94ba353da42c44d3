// Package main - точка входа HTTP API сервиса геймификации.
//
// API принимает учебные события, отдаёт лидерборды, статистику, серии и
// достижения. Фоновые задачи выполняет отдельный процесс cmd/worker.
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
	"github.com/coursehub/gamification/internal/bootstrap"
	httpapi "github.com/coursehub/gamification/internal/interface/http"
	"github.com/coursehub/gamification/internal/interface/http/handlers"
	"github.com/coursehub/gamification/pkg/logger"
)

func main() {
	configDir := flag.String("config", ".", "directory containing an optional app.env")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configDir); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configDir string) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := bootstrap.NewLogger(cfg).With(logger.Component("api"))
	defer func() { _ = log.Sync() }()

	log.Info("starting gamification API",
		logger.String("timezone", cfg.App.Location.String()),
		logger.String("db_driver", cfg.Database.Driver),
		logger.Bool("redis", cfg.Redis.Enabled),
	)

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

	auth, err := handlers.NewAuthenticator(handlers.AuthConfig{
		Secret: cfg.Auth.JWTSecret,
		Issuer: cfg.Auth.Issuer,
		Leeway: cfg.Auth.Leeway,
	})
	if err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. HTTP СЕРВЕР
	// ─────────────────────────────────────────────────────────────────────────
	srvCfg := httpapi.DefaultConfig()
	srvCfg.Host = cfg.HTTP.Host
	srvCfg.Port = cfg.HTTP.Port
	srvCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	srvCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	srvCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	srvCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	srvCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	if cfg.IsDevelopment() {
		srvCfg.Mode = "debug"
	}

	deps := httpapi.Dependencies{
		App:           c.App,
		Auth:          auth,
		HealthChecker: c.HealthChecker(),
		Logger:        log,
	}
	if c.Limiter != nil {
		deps.Limiter = c.Limiter
	}

	srv, err := httpapi.NewServer(srvCfg, deps)
	if err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", logger.Duration("timeout", cfg.App.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.App.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown completed successfully")
	return nil
}
