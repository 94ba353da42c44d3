package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/coursehub/gamification/internal/domain/activity"
	"github.com/coursehub/gamification/pkg/timeutil"
)

// ActivityRepository implements activity.Repository using PostgreSQL.
type ActivityRepository struct {
	q     Querier
	clock timeutil.Clock
}

const activityColumns = `id, user_id, activity_type, COALESCE(entity_id, ''), points_earned, created_at`

// Append inserts a ledger entry. Empty ID and CreatedAt are filled in.
func (r *ActivityRepository) Append(ctx context.Context, entry *activity.Entry) (string, error) {
	id := entry.ID
	if id == "" {
		id = newID()
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.clock.Now()
	}

	_, err := r.q.Exec(ctx, `
		INSERT INTO activity_log (id, user_id, activity_type, entity_id, points_earned, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)`,
		id, entry.UserID, entry.Type.String(), entry.EntityID, entry.Points, createdAt)
	if err != nil {
		return "", mapError("activity", "Append", err, nil)
	}
	return id, nil
}

// ListByUser returns the user's entries, newest first.
func (r *ActivityRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*activity.Entry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+activityColumns+`
		FROM activity_log
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, mapError("activity", "ListByUser", err, nil)
	}
	return scanEntries(rows, "ListByUser")
}

// ListRecent returns the newest entries across all users.
func (r *ActivityRepository) ListRecent(ctx context.Context, limit int) ([]*activity.Entry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+activityColumns+`
		FROM activity_log
		ORDER BY created_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, mapError("activity", "ListRecent", err, nil)
	}
	return scanEntries(rows, "ListRecent")
}

// LockUser takes pg_advisory_xact_lock keyed on the user id. The lock is
// released when the surrounding transaction ends.
func (r *ActivityRepository) LockUser(ctx context.Context, userID string) error {
	if _, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID); err != nil {
		return mapError("activity", "LockUser", err, nil)
	}
	return nil
}

// HasEntrySince reports whether the user has an entry of type t at or after since.
func (r *ActivityRepository) HasEntrySince(ctx context.Context, userID string, t activity.Type, since time.Time) (bool, error) {
	var ok bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM activity_log
			WHERE user_id = $1 AND activity_type = $2 AND created_at >= $3
		)`, userID, t.String(), since).Scan(&ok)
	if err != nil {
		return false, mapError("activity", "HasEntrySince", err, nil)
	}
	return ok, nil
}

// HasEntryForEntity reports whether the user has an entry of type t for entityID.
func (r *ActivityRepository) HasEntryForEntity(ctx context.Context, userID string, t activity.Type, entityID string) (bool, error) {
	var ok bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM activity_log
			WHERE user_id = $1 AND activity_type = $2 AND entity_id = $3
		)`, userID, t.String(), entityID).Scan(&ok)
	if err != nil {
		return false, mapError("activity", "HasEntryForEntity", err, nil)
	}
	return ok, nil
}

// UsersActiveBetween returns distinct users with an entry in [from, to).
func (r *ActivityRepository) UsersActiveBetween(ctx context.Context, from, to time.Time, exclude []activity.Type) ([]string, error) {
	rows, err := r.q.Query(ctx, `
		SELECT DISTINCT user_id
		FROM activity_log
		WHERE created_at >= $1 AND created_at < $2
		  AND NOT (activity_type = ANY($3))
		ORDER BY user_id`, from, to, typeStrings(exclude))
	if err != nil {
		return nil, mapError("activity", "UsersActiveBetween", err, nil)
	}
	users, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, mapError("activity", "UsersActiveBetween", err, nil)
	}
	return users, nil
}

// SumPoints returns the total points recorded for a user.
func (r *ActivityRepository) SumPoints(ctx context.Context, userID string) (int64, error) {
	var sum int64
	err := r.q.QueryRow(ctx,
		`SELECT COALESCE(SUM(points_earned), 0) FROM activity_log WHERE user_id = $1`, userID,
	).Scan(&sum)
	if err != nil {
		return 0, mapError("activity", "SumPoints", err, nil)
	}
	return sum, nil
}

func scanEntries(rows pgx.Rows, op string) ([]*activity.Entry, error) {
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*activity.Entry, error) {
		var e activity.Entry
		var t string
		if err := row.Scan(&e.ID, &e.UserID, &t, &e.EntityID, &e.Points, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = activity.Type(t)
		return &e, nil
	})
	if err != nil {
		return nil, mapError("activity", op, err, nil)
	}
	return out, nil
}
