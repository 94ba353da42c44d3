package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/coursehub/gamification/internal/domain/activity"
	"github.com/coursehub/gamification/internal/domain/leaderboard"
	"github.com/coursehub/gamification/internal/domain/stats"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardRepository implements leaderboard.Repository using PostgreSQL.
// Ranks are not stored: the caller assigns them from offset and position.
type LeaderboardRepository struct {
	q Querier
}

// TopByCounter pages user_stats ordered by one point bucket.
func (r *LeaderboardRepository) TopByCounter(ctx context.Context, field stats.Field, limit, offset int) ([]leaderboard.Row, error) {
	if !field.IsPoints() {
		return nil, stats.ErrInvalidField
	}
	col := field.Column()
	rows, err := r.q.Query(ctx, fmt.Sprintf(`
		SELECT user_id, %s, last_updated
		FROM user_stats
		ORDER BY %s DESC, last_updated ASC, user_id ASC
		LIMIT $1 OFFSET $2`, col, col), limit, offset)
	if err != nil {
		return nil, mapError("leaderboard", "TopByCounter", err, nil)
	}
	return collectBoardRows(rows, "TopByCounter")
}

// TopByCourse sums ledger points per user for one course.
func (r *LeaderboardRepository) TopByCourse(ctx context.Context, courseID string, types []activity.Type, limit, offset int) ([]leaderboard.Row, error) {
	rows, err := r.q.Query(ctx, `
		SELECT user_id, SUM(points_earned)::BIGINT AS points, MAX(created_at) AS reached_at
		FROM activity_log
		WHERE entity_id = $1 AND activity_type = ANY($2)
		GROUP BY user_id
		ORDER BY points DESC, reached_at ASC, user_id ASC
		LIMIT $3 OFFSET $4`, courseID, typeStrings(types), limit, offset)
	if err != nil {
		return nil, mapError("leaderboard", "TopByCourse", err, nil)
	}
	return collectBoardRows(rows, "TopByCourse")
}

// CourseIDs returns the distinct course ids present in the ledger.
func (r *LeaderboardRepository) CourseIDs(ctx context.Context, types []activity.Type) ([]string, error) {
	rows, err := r.q.Query(ctx, `
		SELECT DISTINCT entity_id
		FROM activity_log
		WHERE activity_type = ANY($1) AND entity_id IS NOT NULL AND entity_id <> ''
		ORDER BY entity_id`, typeStrings(types))
	if err != nil {
		return nil, mapError("leaderboard", "CourseIDs", err, nil)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, mapError("leaderboard", "CourseIDs", err, nil)
	}
	return ids, nil
}

func collectBoardRows(rows pgx.Rows, op string) ([]leaderboard.Row, error) {
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (leaderboard.Row, error) {
		var r leaderboard.Row
		err := row.Scan(&r.UserID, &r.Points, &r.ReachedAt)
		return r, err
	})
	if err != nil {
		return nil, mapError("leaderboard", op, err, nil)
	}
	return out, nil
}
