package query

import (
	"context"
	"fmt"
	"time"

	"github.com/coursehub/gamification/internal/application/engine"
	"github.com/coursehub/gamification/internal/domain/stats"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET USER STATS QUERY
// Возвращает счётчики пользователя и его текущий ранг.
// ══════════════════════════════════════════════════════════════════════════════

// GetUserStatsQuery содержит параметры запроса.
type GetUserStatsQuery struct {
	UserID string
}

// UserStatsDTO - статистика пользователя для ответа.
type UserStatsDTO struct {
	UserID           string    `json:"user_id"`
	TotalPoints      int64     `json:"total_points"`
	WeeklyPoints     int64     `json:"weekly_points"`
	MonthlyPoints    int64     `json:"monthly_points"`
	Rank             int       `json:"rank"`
	LessonsCompleted int64     `json:"lessons_completed"`
	CoursesCompleted int64     `json:"courses_completed"`
	TotalTimeSpent   int64     `json:"total_time_spent"`
	LastUpdated      time.Time `json:"last_updated"`
}

// GetUserStatsHandler обрабатывает запрос статистики.
type GetUserStatsHandler struct {
	stats *engine.StatsEngine
}

// NewGetUserStatsHandler создаёт новый обработчик.
func NewGetUserStatsHandler(stats *engine.StatsEngine) *GetUserStatsHandler {
	return &GetUserStatsHandler{stats: stats}
}

// Handle возвращает nil без ошибки, если у пользователя ещё нет статистики.
func (h *GetUserStatsHandler) Handle(ctx context.Context, q GetUserStatsQuery) (*UserStatsDTO, error) {
	s, err := h.stats.GetUserStats(ctx, q.UserID)
	if err != nil {
		return nil, fmt.Errorf("get_user_stats: %w", err)
	}
	if s == nil {
		return nil, nil
	}
	return toUserStatsDTO(s), nil
}

func toUserStatsDTO(s *stats.UserStats) *UserStatsDTO {
	dto := &UserStatsDTO{
		UserID:           s.UserID,
		TotalPoints:      s.TotalPoints,
		WeeklyPoints:     s.WeeklyPoints,
		MonthlyPoints:    s.MonthlyPoints,
		LessonsCompleted: s.LessonsCompleted,
		CoursesCompleted: s.CoursesCompleted,
		TotalTimeSpent:   s.TotalTimeSpent,
		LastUpdated:      s.LastUpdated,
	}
	if s.Rank != nil {
		dto.Rank = *s.Rank
	}
	return dto
}
