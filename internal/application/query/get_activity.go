package query

import (
	"context"
	"fmt"
	"time"

	"github.com/coursehub/gamification/internal/domain/activity"
	"github.com/coursehub/gamification/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY QUERIES
// История начислений пользователя и последние события по всем пользователям.
// ══════════════════════════════════════════════════════════════════════════════

const (
	DefaultHistoryLimit = 10
	DefaultRecentLimit  = 20
	MaxActivityLimit    = 100
)

// ActivityDTO - запись журнала.
type ActivityDTO struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"`
	EntityID  string    `json:"entity_id,omitempty"`
	Points    int       `json:"points"`
	CreatedAt time.Time `json:"created_at"`
}

// GetActivityHistoryQuery содержит параметры истории.
type GetActivityHistoryQuery struct {
	UserID string
	Limit  int
	Offset int
}

// GetRecentActivityQuery содержит параметры ленты.
type GetRecentActivityQuery struct {
	Limit int
}

// ActivityHandler обрабатывает запросы журнала.
type ActivityHandler struct {
	repo activity.Repository
}

// NewActivityHandler создаёт новый обработчик.
func NewActivityHandler(repo activity.Repository) *ActivityHandler {
	return &ActivityHandler{repo: repo}
}

// History возвращает записи пользователя, новые первыми.
func (h *ActivityHandler) History(ctx context.Context, q GetActivityHistoryQuery) ([]ActivityDTO, error) {
	page, err := shared.NewPage(q.Limit, q.Offset, DefaultHistoryLimit, MaxActivityLimit)
	if err != nil {
		return nil, err
	}
	list, err := h.repo.ListByUser(ctx, q.UserID, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("get_activity_history: %w", err)
	}
	return toActivityDTOs(list), nil
}

// Recent возвращает последние записи по всем пользователям.
func (h *ActivityHandler) Recent(ctx context.Context, q GetRecentActivityQuery) ([]ActivityDTO, error) {
	page, err := shared.NewPage(q.Limit, 0, DefaultRecentLimit, MaxActivityLimit)
	if err != nil {
		return nil, err
	}
	list, err := h.repo.ListRecent(ctx, page.Limit)
	if err != nil {
		return nil, fmt.Errorf("get_recent_activity: %w", err)
	}
	return toActivityDTOs(list), nil
}

func toActivityDTOs(list []*activity.Entry) []ActivityDTO {
	out := make([]ActivityDTO, len(list))
	for i, e := range list {
		out[i] = ActivityDTO{
			ID:        e.ID,
			UserID:    e.UserID,
			Type:      e.Type.String(),
			EntityID:  e.EntityID,
			Points:    e.Points,
			CreatedAt: e.CreatedAt,
		}
	}
	return out
}
