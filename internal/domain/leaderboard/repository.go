package leaderboard

import (
	"context"
	"errors"
	"time"

	"github.com/coursehub/gamification/internal/domain/activity"
	"github.com/coursehub/gamification/internal/domain/stats"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Repository - read-only источник данных для лидербордов.
type Repository interface {
	// TopByCounter возвращает страницу пользователей, упорядоченных по счётчику
	// UserStats (порядок Less, ReachedAt = lastUpdated).
	TopByCounter(ctx context.Context, field stats.Field, limit, offset int) ([]Row, error)

	// TopByCourse суммирует очки журнала с entityId = courseID и типом из types,
	// группирует по пользователю (порядок Less, ReachedAt = последняя запись).
	TopByCourse(ctx context.Context, courseID string, types []activity.Type, limit, offset int) ([]Row, error)

	// CourseIDs возвращает различные entityId записей с типом из types.
	CourseIDs(ctx context.Context, types []activity.Type) ([]string, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// ErrCacheMiss возвращается кешем, если страницы нет.
var ErrCacheMiss = errors.New("leaderboard: cache miss")

// Cache - кеш готовых страниц лидерборда (Redis, in-memory).
// Кеш не является источником истины: промах или ошибка означают пересчёт.
type Cache interface {
	// Get возвращает страницу или ErrCacheMiss.
	Get(ctx context.Context, q Query) (*Board, error)

	// Set сохраняет страницу с TTL.
	Set(ctx context.Context, q Query, board *Board, ttl time.Duration) error

	// Invalidate удаляет все страницы области (и курса, если задан).
	Invalidate(ctx context.Context, scope Scope, courseID string) error
}
