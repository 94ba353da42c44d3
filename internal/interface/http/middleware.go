package http

import (
	"context"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/coursehub/gamification/internal/interface/http/handlers"
	"github.com/coursehub/gamification/pkg/logger"
)

const headerRequestID = "X-Request-ID"

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// requestID propagates X-Request-ID or generates one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(handlers.RequestIDKey, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// accessLog writes one structured line per request.
func accessLog(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", status),
			logger.Latency(time.Since(start)),
			logger.String("client_ip", c.ClientIP()),
			logger.String(handlers.RequestIDKey, c.GetString(handlers.RequestIDKey)),
		}
		if id, ok := handlers.IdentityFrom(c); ok {
			fields = append(fields, logger.UserID(id.UserID))
		}

		switch {
		case status >= http.StatusInternalServerError:
			log.Error("http request", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("http request", fields...)
		default:
			log.Debug("http request", fields...)
		}
	}
}

// recovery turns a panic into a 500 envelope.
func recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error("panic recovered",
					logger.Any("error", err),
					logger.String("path", c.Request.URL.Path),
					logger.String("stack", string(debug.Stack())),
				)
				handlers.RespondError(c, http.StatusInternalServerError, handlers.CodeInternalError, "Internal server error")
			}
		}()
		c.Next()
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// ══════════════════════════════════════════════════════════════════════════════

// Limiter decides whether key may make another request within window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// rateLimit rejects clients over limit requests per minute. A limiter error
// lets the request through.
func rateLimit(l Limiter, limit int, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := l.Allow(c.Request.Context(), c.ClientIP(), limit, time.Minute)
		if err != nil {
			log.Warn("rate limiter unavailable", logger.Err(err))
			c.Next()
			return
		}
		if !ok {
			c.Header("Retry-After", "60")
			handlers.RespondError(c, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests, please try again later")
			return
		}
		c.Next()
	}
}

// memoryLimiter is a sliding-window limiter local to this process.
type memoryLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	window   time.Duration
	done     chan struct{}
	once     sync.Once
}

func newMemoryLimiter(window time.Duration) *memoryLimiter {
	rl := &memoryLimiter{
		requests: make(map[string][]time.Time),
		window:   window,
		done:     make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

func (rl *memoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	return rl.allow(key, limit, window, time.Now()), nil
}

func (rl *memoryLimiter) allow(key string, limit int, window time.Duration, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	valid := prune(rl.requests[key], now.Add(-window))
	if len(valid) >= limit {
		rl.requests[key] = valid
		return false
	}
	rl.requests[key] = append(valid, now)
	return true
}

func (rl *memoryLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			for key, requests := range rl.requests {
				if valid := prune(requests, now.Add(-rl.window)); len(valid) == 0 {
					delete(rl.requests, key)
				} else {
					rl.requests[key] = valid
				}
			}
			rl.mu.Unlock()
		}
	}
}

func (rl *memoryLimiter) stop() {
	rl.once.Do(func() { close(rl.done) })
}

func prune(times []time.Time, after time.Time) []time.Time {
	var valid []time.Time
	for _, t := range times {
		if t.After(after) {
			valid = append(valid, t)
		}
	}
	return valid
}
