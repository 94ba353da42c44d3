package query

import (
	"context"
	"fmt"
	"time"

	"github.com/coursehub/gamification/internal/application/engine"
	"github.com/coursehub/gamification/internal/domain/achievement"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT QUERIES
// Каталог достижений и достижения пользователя.
// ══════════════════════════════════════════════════════════════════════════════

// AchievementDTO - запись каталога.
type AchievementDTO struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Type          string `json:"type"`
	Threshold     int    `json:"threshold"`
	PointsAwarded int    `json:"points_awarded"`
	IconURL       string `json:"icon_url,omitempty"`
}

// EarnedAchievementDTO - полученное достижение.
type EarnedAchievementDTO struct {
	AchievementDTO
	EarnedAt time.Time `json:"earned_at"`
	Notified bool      `json:"notified"`
}

// AchievementHandler обрабатывает запросы достижений.
type AchievementHandler struct {
	achievements *engine.AchievementEngine
}

// NewAchievementHandler создаёт новый обработчик.
func NewAchievementHandler(achievements *engine.AchievementEngine) *AchievementHandler {
	return &AchievementHandler{achievements: achievements}
}

// Catalog возвращает все достижения.
func (h *AchievementHandler) Catalog(ctx context.Context) ([]AchievementDTO, error) {
	list, err := h.achievements.Catalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("get_achievement_catalog: %w", err)
	}
	out := make([]AchievementDTO, len(list))
	for i, a := range list {
		out[i] = ToAchievementDTO(a)
	}
	return out, nil
}

// UserAchievements возвращает достижения пользователя, новые первыми.
func (h *AchievementHandler) UserAchievements(ctx context.Context, userID string) ([]EarnedAchievementDTO, error) {
	list, err := h.achievements.UserAchievements(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get_user_achievements: %w", err)
	}
	return ToEarnedDTOs(list), nil
}

// ToAchievementDTO преобразует запись каталога.
func ToAchievementDTO(a *achievement.Achievement) AchievementDTO {
	return AchievementDTO{
		ID:            a.ID,
		Name:          a.Name,
		Description:   a.Description,
		Type:          a.Type.String(),
		Threshold:     a.Threshold,
		PointsAwarded: a.PointsAwarded,
		IconURL:       a.IconURL,
	}
}

// ToEarnedDTOs преобразует список полученных достижений.
func ToEarnedDTOs(list []*achievement.Earned) []EarnedAchievementDTO {
	out := make([]EarnedAchievementDTO, len(list))
	for i, e := range list {
		out[i] = EarnedAchievementDTO{
			AchievementDTO: ToAchievementDTO(&e.Achievement),
			EarnedAt:       e.EarnedAt,
			Notified:       e.Notified,
		}
	}
	return out
}
