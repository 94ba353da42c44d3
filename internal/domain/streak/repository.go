package streak

import (
	"context"
	"time"
)

// Repository persists streak rows.
type Repository interface {
	// Record applies RecordActivity for today as one atomic unit: it creates the
	// row when absent, otherwise locks it, transitions it and writes it back.
	// It returns the resulting streak and whether anything changed.
	Record(ctx context.Context, userID string, today time.Time) (*Streak, bool, error)

	// Get returns the stored row or a not-found error.
	Get(ctx context.Context, userID string) (*Streak, error)

	// ResetLapsed sets currentStreak = 0 on every row whose lastActivityDate is
	// neither today nor yesterday, leaving lastActivityDate untouched.
	ResetLapsed(ctx context.Context, today time.Time) (int64, error)

	// Top returns streaks ordered by currentStreak descending.
	Top(ctx context.Context, limit int) ([]*Streak, error)
}
