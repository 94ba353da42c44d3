package command

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/coursehub/gamification/internal/application/engine"
	"github.com/coursehub/gamification/internal/domain/achievement"
	"github.com/coursehub/gamification/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHECK ACHIEVEMENTS COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// CheckAchievementsCommand asks for newly unlocked achievements of a user.
type CheckAchievementsCommand struct {
	UserID string
}

// CheckAchievementsHandler handles the CheckAchievementsCommand.
type CheckAchievementsHandler struct {
	achievements *engine.AchievementEngine
}

// NewCheckAchievementsHandler creates a new CheckAchievementsHandler.
func NewCheckAchievementsHandler(achievements *engine.AchievementEngine) *CheckAchievementsHandler {
	return &CheckAchievementsHandler{achievements: achievements}
}

// Handle grants every achievement the user now satisfies and returns them.
func (h *CheckAchievementsHandler) Handle(ctx context.Context, cmd CheckAchievementsCommand) ([]achievement.Granted, error) {
	if cmd.UserID == "" {
		return nil, invalid("check_achievements", "user_id is required")
	}
	granted, err := h.achievements.CheckAndAward(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("check_achievements: %w", err)
	}
	return granted, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CLAIM NOTIFICATIONS COMMAND
// Reading unnotified achievements acknowledges them, so this is a command.
// ══════════════════════════════════════════════════════════════════════════════

// ClaimNotificationsCommand reads and acknowledges a user's new achievements.
type ClaimNotificationsCommand struct {
	UserID string
}

// ClaimNotificationsHandler handles the ClaimNotificationsCommand.
type ClaimNotificationsHandler struct {
	achievements *engine.AchievementEngine
}

// NewClaimNotificationsHandler creates a new ClaimNotificationsHandler.
func NewClaimNotificationsHandler(achievements *engine.AchievementEngine) *ClaimNotificationsHandler {
	return &ClaimNotificationsHandler{achievements: achievements}
}

// Handle returns the unnotified grants, now marked notified.
func (h *ClaimNotificationsHandler) Handle(ctx context.Context, cmd ClaimNotificationsCommand) ([]*achievement.Earned, error) {
	if cmd.UserID == "" {
		return nil, invalid("claim_notifications", "user_id is required")
	}
	list, err := h.achievements.Unnotified(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("claim_notifications: %w", err)
	}
	return list, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CREATE ACHIEVEMENT COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// CreateAchievementCommand adds an entry to the catalog.
type CreateAchievementCommand struct {
	Name          string `json:"name" validate:"required,max=100"`
	Description   string `json:"description" validate:"max=500"`
	Type          string `json:"type" validate:"required,oneof=lesson_completion course_completion streak time_spent perfect_score"`
	Threshold     int    `json:"threshold" validate:"gte=0"`
	PointsAwarded int    `json:"points_awarded" validate:"gte=0"`
	IconURL       string `json:"icon_url" validate:"omitempty,url"`
}

// CreateAchievementHandler handles the CreateAchievementCommand.
type CreateAchievementHandler struct {
	achievements *engine.AchievementEngine
	validate     *validator.Validate
}

// NewCreateAchievementHandler creates a new CreateAchievementHandler.
func NewCreateAchievementHandler(achievements *engine.AchievementEngine) *CreateAchievementHandler {
	return &CreateAchievementHandler{
		achievements: achievements,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Handle validates the input and stores the new achievement.
func (h *CreateAchievementHandler) Handle(ctx context.Context, cmd CreateAchievementCommand) (*achievement.Achievement, error) {
	if err := h.validate.Struct(cmd); err != nil {
		return nil, shared.WrapError("achievement", "Create", shared.ErrValidation, "invalid achievement", err)
	}

	a := &achievement.Achievement{
		Name:          cmd.Name,
		Description:   cmd.Description,
		Type:          achievement.Type(cmd.Type),
		Threshold:     cmd.Threshold,
		PointsAwarded: cmd.PointsAwarded,
		IconURL:       cmd.IconURL,
	}
	if err := h.achievements.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create_achievement: %w", err)
	}
	return a, nil
}
