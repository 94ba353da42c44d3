// Package http serves the gamification REST API and the health endpoints.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/coursehub/gamification/internal/interface/http/handlers"
	"github.com/coursehub/gamification/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Host - address to bind (default: "0.0.0.0").
	Host string

	// Port - port to listen on (default: 8080).
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// MaxHeaderBytes - maximum size of request headers.
	MaxHeaderBytes int

	// AllowedOrigins - allowed origins for CORS. Empty disables CORS.
	AllowedOrigins []string

	// RateLimitPerMinute - requests per minute per client IP (0 = disabled).
	RateLimitPerMinute int

	// Mode is the gin mode: debug, release or test.
	Mode string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       15 * time.Second,
		IdleTimeout:        60 * time.Second,
		MaxHeaderBytes:     1 << 20,
		AllowedOrigins:     []string{"*"},
		RateLimitPerMinute: 300,
		Mode:               gin.ReleaseMode,
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains everything the routes need.
type Dependencies struct {
	App           handlers.Application
	Auth          *handlers.Authenticator
	HealthChecker *handlers.CompositeHealthChecker
	Logger        *logger.Logger

	// Limiter is shared across replicas when set; otherwise requests are
	// counted per process.
	Limiter Limiter
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	engine     *gin.Engine
	httpServer *http.Server
	logger     *logger.Logger
	limiter    Limiter
	local      *memoryLimiter

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer builds the router and the underlying http.Server.
func NewServer(config Config, deps Dependencies) (*Server, error) {
	if deps.Auth == nil {
		return nil, errors.New("http: authenticator is required")
	}
	if deps.Logger == nil {
		deps.Logger = logger.Default()
	}
	if deps.HealthChecker == nil {
		deps.HealthChecker = handlers.NewCompositeHealthChecker("")
	}
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}

	s := &Server{
		config: config,
		engine: gin.New(),
		logger: deps.Logger.With(logger.Component("http")),
	}
	if config.RateLimitPerMinute > 0 {
		s.limiter = deps.Limiter
		if s.limiter == nil {
			s.local = newMemoryLimiter(time.Minute)
			s.limiter = s.local
		}
	}

	s.setupMiddleware()
	s.setupRoutes(deps)

	s.httpServer = &http.Server{
		Addr:           config.Address(),
		Handler:        s.engine,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.engine.Use(requestID(), recovery(s.logger), accessLog(s.logger))

	if len(s.config.AllowedOrigins) > 0 {
		corsCfg := cors.DefaultConfig()
		if len(s.config.AllowedOrigins) == 1 && s.config.AllowedOrigins[0] == "*" {
			corsCfg.AllowAllOrigins = true
		} else {
			corsCfg.AllowOrigins = s.config.AllowedOrigins
			corsCfg.AllowCredentials = true
		}
		corsCfg.AddAllowHeaders("Authorization")
		corsCfg.AddExposeHeaders(headerRequestID)
		corsCfg.MaxAge = 12 * time.Hour
		s.engine.Use(cors.New(corsCfg))
	}

	if s.limiter != nil {
		s.engine.Use(rateLimit(s.limiter, s.config.RateLimitPerMinute, s.logger))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes(deps Dependencies) {
	s.engine.GET("/health", deps.HealthChecker.Live)
	s.engine.GET("/ready", deps.HealthChecker.Ready)

	s.engine.NoRoute(func(c *gin.Context) {
		handlers.RespondError(c, http.StatusNotFound, handlers.CodeNotFound, "route not found")
	})

	api := s.engine.Group("/api/v1/gamification")
	handlers.NewGamificationHandler(deps.App, deps.Logger).Register(api, deps.Auth.RequireAuth())
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.local != nil {
		s.local.stop()
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}

// Address returns the server address.
func (s *Server) Address() string {
	return s.config.Address()
}
