// Package achievement contains the achievement catalog, the unlock evaluation and
// the per-user grant records.
package achievement

import (
	"strings"
	"time"

	"github.com/coursehub/gamification/internal/domain/shared"
)

var (
	ErrAchievementNotFound = shared.NewDomainError("achievement", "Find", shared.ErrNotFound, "achievement not found")
	ErrUnknownType         = shared.NewDomainError("achievement", "Evaluate", shared.ErrInvalidInput, "unknown achievement type")
	ErrInvalidName         = shared.NewDomainError("achievement", "Validate", shared.ErrEmptyValue, "name is required")
	ErrInvalidThreshold    = shared.NewDomainError("achievement", "Validate", shared.ErrNegativeValue, "threshold must be non-negative")
	ErrInvalidPoints       = shared.NewDomainError("achievement", "Validate", shared.ErrNegativeValue, "points awarded must be non-negative")
)

// Achievement is one catalog entry.
type Achievement struct {
	ID            string
	Name          string
	Description   string
	Type          Type
	Threshold     int
	PointsAwarded int
	IconURL       string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Validate checks the catalog invariants.
func (a *Achievement) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrInvalidName
	}
	if !a.Type.IsValid() {
		return ErrUnknownType
	}
	if a.Threshold < 0 {
		return ErrInvalidThreshold
	}
	if a.PointsAwarded < 0 {
		return ErrInvalidPoints
	}
	return nil
}

// UserAchievement records that a user earned an achievement. It exists at most
// once per (UserID, AchievementID).
type UserAchievement struct {
	ID            string
	UserID        string
	AchievementID string
	EarnedAt      time.Time
	Notified      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Earned joins a grant with its catalog entry.
type Earned struct {
	UserAchievement
	Achievement Achievement
}

// Granted is what a caller surfaces to the user after an award.
type Granted struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	PointsAwarded int    `json:"points_awarded"`
}

// GrantedFrom summarizes a catalog entry.
func GrantedFrom(a *Achievement) Granted {
	return Granted{
		ID:            a.ID,
		Name:          a.Name,
		Description:   a.Description,
		PointsAwarded: a.PointsAwarded,
	}
}

// Unearned returns the catalog entries whose id is not in earned, keeping order.
func Unearned(catalog []*Achievement, earned map[string]struct{}) []*Achievement {
	out := make([]*Achievement, 0, len(catalog))
	for _, a := range catalog {
		if _, ok := earned[a.ID]; ok {
			continue
		}
		out = append(out, a)
	}
	return out
}
