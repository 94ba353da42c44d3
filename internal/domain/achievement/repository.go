package achievement

import (
	"context"
	"time"
)

// Repository persists the catalog and the per-user grants.
type Repository interface {
	// Catalog returns every achievement ordered by type, threshold and name.
	Catalog(ctx context.Context) ([]*Achievement, error)

	// Get returns one catalog entry or a not-found error.
	Get(ctx context.Context, id string) (*Achievement, error)

	// Create inserts a catalog entry, assigning ID and timestamps when empty.
	Create(ctx context.Context, a *Achievement) error

	// EarnedIDs returns the ids of achievements the user already holds.
	EarnedIDs(ctx context.Context, userID string) (map[string]struct{}, error)

	// Grant inserts the (user, achievement) row. When the row already exists it
	// writes nothing and returns inserted=false.
	Grant(ctx context.Context, userID, achievementID string, earnedAt time.Time) (ua *UserAchievement, inserted bool, err error)

	// ListEarned returns the user's grants joined to the catalog, newest first.
	ListEarned(ctx context.Context, userID string) ([]*Earned, error)

	// ListUnnotified returns grants with notified=false joined to the catalog,
	// oldest first, locking them for the enclosing transaction where supported.
	ListUnnotified(ctx context.Context, userID string) ([]*Earned, error)

	// MarkNotified flips notified=true for the given grant ids of the user.
	MarkNotified(ctx context.Context, userID string, ids []string) (int64, error)
}
