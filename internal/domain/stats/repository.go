package stats

import "context"

// Repository persists UserStats. Counters are only ever changed through Increment
// and the reset/rank maintenance methods.
type Repository interface {
	// Increment adds every delta to the user's row in one indivisible
	// insert-or-add. A missing row is created with the deltas as initial values.
	// lastUpdated moves only when a point bucket changes.
	Increment(ctx context.Context, userID string, deltas ...FieldDelta) error

	// Get returns the stored row or a not-found error.
	Get(ctx context.Context, userID string) (*UserStats, error)

	// CountAbove returns how many users have strictly more total points.
	CountAbove(ctx context.Context, totalPoints int64) (int64, error)

	// Reset zeroes field for every user and returns the number of rows touched.
	Reset(ctx context.Context, field Field) (int64, error)

	// UpdateRanks stores a sequential rank for every row, ordered by total points
	// with the leaderboard tie-break, and returns the number of rows ranked.
	UpdateRanks(ctx context.Context) (int64, error)
}
