// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"fmt"

	"github.com/coursehub/gamification/internal/application/engine"
	"github.com/coursehub/gamification/internal/domain/leaderboard"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Получает страницу лидерборда: общий, недельный, месячный или по курсу.
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardQuery содержит параметры запроса лидерборда.
type GetLeaderboardQuery struct {
	// Scope - область: global, weekly, monthly, course.
	Scope leaderboard.Scope

	// CourseID - обязателен только для области course.
	CourseID string

	// Limit - количество записей (по умолчанию 10, максимум 100).
	Limit int

	// Offset - смещение для пагинации.
	Offset int
}

// GetLeaderboardHandler обрабатывает запрос лидерборда.
type GetLeaderboardHandler struct {
	leaderboards *engine.LeaderboardEngine
}

// NewGetLeaderboardHandler создаёт новый обработчик.
func NewGetLeaderboardHandler(leaderboards *engine.LeaderboardEngine) *GetLeaderboardHandler {
	return &GetLeaderboardHandler{leaderboards: leaderboards}
}

// Handle выполняет запрос. Ранг = offset + индекс + 1.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, q GetLeaderboardQuery) (*leaderboard.Board, error) {
	lq, err := leaderboard.NewQuery(q.Scope, q.CourseID, q.Limit, q.Offset)
	if err != nil {
		return nil, err
	}
	board, err := h.leaderboards.Get(ctx, lq)
	if err != nil {
		return nil, fmt.Errorf("get_leaderboard: %w", err)
	}
	return board, nil
}
