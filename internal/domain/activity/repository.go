package activity

import (
	"context"
	"time"
)

// Repository is the ledger store. It only appends and reads; entries are never
// updated or deleted in normal operation.
type Repository interface {
	// Append inserts the entry and returns its id. It has no side effects beyond
	// the write itself.
	Append(ctx context.Context, entry *Entry) (string, error)

	// ListByUser returns a user's entries, newest first.
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Entry, error)

	// ListRecent returns the newest entries across all users.
	ListRecent(ctx context.Context, limit int) ([]*Entry, error)

	// LockUser serializes check-then-append sequences for one user until the
	// enclosing transaction ends. Outside a transaction it returns immediately.
	LockUser(ctx context.Context, userID string) error

	// HasEntrySince reports whether the user has an entry of type t created at or after since.
	HasEntrySince(ctx context.Context, userID string, t Type, since time.Time) (bool, error)

	// HasEntryForEntity reports whether the user has an entry of type t for entityID.
	HasEntryForEntity(ctx context.Context, userID string, t Type, entityID string) (bool, error)

	// UsersActiveBetween returns distinct users with an entry in [from, to),
	// ignoring entries whose type is in exclude.
	UsersActiveBetween(ctx context.Context, from, to time.Time, exclude []Type) ([]string, error)

	// SumPoints returns the total points recorded for a user.
	SumPoints(ctx context.Context, userID string) (int64, error)
}
