package query

import (
	"context"
	"fmt"

	"github.com/coursehub/gamification/internal/application/engine"
	"github.com/coursehub/gamification/internal/domain/streak"
	"github.com/coursehub/gamification/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// StreakDTO - серия пользователя для ответа.
type StreakDTO struct {
	UserID           string `json:"user_id"`
	CurrentStreak    int    `json:"current_streak"`
	LongestStreak    int    `json:"longest_streak"`
	LastActivityDate string `json:"last_activity_date"`
	ActiveToday      bool   `json:"active_today"`
}

// GetUserStreakQuery содержит параметры запроса серии.
type GetUserStreakQuery struct {
	UserID string
}

// GetTopStreaksQuery содержит параметры запроса топа серий.
type GetTopStreaksQuery struct {
	// Limit - по умолчанию 10, максимум 100.
	Limit int
}

// StreakHandler обрабатывает запросы серий.
type StreakHandler struct {
	streaks *engine.StreakEngine
}

// NewStreakHandler создаёт новый обработчик.
func NewStreakHandler(streaks *engine.StreakEngine) *StreakHandler {
	return &StreakHandler{streaks: streaks}
}

// UserStreak возвращает nil без ошибки, если серии нет.
func (h *StreakHandler) UserStreak(ctx context.Context, q GetUserStreakQuery) (*StreakDTO, error) {
	s, err := h.streaks.GetUserStreak(ctx, q.UserID)
	if err != nil {
		return nil, fmt.Errorf("get_user_streak: %w", err)
	}
	if s == nil {
		return nil, nil
	}
	return h.toDTO(s), nil
}

// TopStreaks возвращает самые длинные текущие серии.
func (h *StreakHandler) TopStreaks(ctx context.Context, q GetTopStreaksQuery) ([]*StreakDTO, error) {
	list, err := h.streaks.GetTopStreaks(ctx, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("get_top_streaks: %w", err)
	}
	out := make([]*StreakDTO, len(list))
	for i, s := range list {
		out[i] = h.toDTO(s)
	}
	return out, nil
}

func (h *StreakHandler) toDTO(s *streak.Streak) *StreakDTO {
	return &StreakDTO{
		UserID:           s.UserID,
		CurrentStreak:    s.CurrentStreak,
		LongestStreak:    s.LongestStreak,
		LastActivityDate: timeutil.FormatDate(s.LastActivityDate),
		ActiveToday:      s.ActiveToday(h.streaks.Today()),
	}
}
