package command

import "github.com/coursehub/gamification/internal/domain/shared"

// invalid builds a validation error for a command, matched by shared.IsValidation.
func invalid(op, message string) error {
	return shared.WrapError("command", op, shared.ErrValidation, message, nil)
}
