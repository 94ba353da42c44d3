package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/coursehub/gamification/internal/domain/stats"
	"github.com/coursehub/gamification/pkg/timeutil"
)

// StatsRepository implements stats.Repository using PostgreSQL.
type StatsRepository struct {
	q     Querier
	clock timeutil.Clock
}

// Increment adds every delta in one INSERT ... ON CONFLICT DO UPDATE. Column
// names come from the stats.Fields whitelist only.
func (r *StatsRepository) Increment(ctx context.Context, userID string, deltas ...stats.FieldDelta) error {
	if err := stats.ValidateDeltas(userID, deltas); err != nil {
		return err
	}

	now := r.clock.Now()
	cols := []string{"id", "user_id", "last_updated", "created_at", "updated_at"}
	args := []any{newID(), userID, now, now, now}
	sets := []string{"updated_at = EXCLUDED.updated_at"}

	merged := make(map[stats.Field]int64, len(deltas))
	order := make([]stats.Field, 0, len(deltas))
	for _, d := range deltas {
		if _, ok := merged[d.Field]; !ok {
			order = append(order, d.Field)
		}
		merged[d.Field] += d.Delta
	}
	for _, f := range order {
		col := f.Column()
		args = append(args, merged[f])
		cols = append(cols, col)
		sets = append(sets, fmt.Sprintf("%s = user_stats.%s + EXCLUDED.%s", col, col, col))
	}

	if stats.TouchesPoints(deltas) {
		sets = append(sets, "last_updated = EXCLUDED.last_updated")
	}

	placeholders := make([]string, len(args))
	for i := range args {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf(`
		INSERT INTO user_stats (%s) VALUES (%s)
		ON CONFLICT (user_id) DO UPDATE SET %s`,
		strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(sets, ", "))

	if _, err := r.q.Exec(ctx, query, args...); err != nil {
		return mapError("stats", "Increment", err, nil)
	}
	return nil
}

// Get returns the stored row or stats.ErrStatsNotFound.
func (r *StatsRepository) Get(ctx context.Context, userID string) (*stats.UserStats, error) {
	var s stats.UserStats
	err := r.q.QueryRow(ctx, `
		SELECT id, user_id, total_points, weekly_points, monthly_points, rank,
		       lessons_completed, courses_completed, total_time_spent,
		       last_updated, created_at, updated_at
		FROM user_stats WHERE user_id = $1`, userID,
	).Scan(
		&s.ID, &s.UserID, &s.TotalPoints, &s.WeeklyPoints, &s.MonthlyPoints, &s.Rank,
		&s.LessonsCompleted, &s.CoursesCompleted, &s.TotalTimeSpent,
		&s.LastUpdated, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, mapError("stats", "Get", err, stats.ErrStatsNotFound)
	}
	return &s, nil
}

// CountAbove returns how many users have strictly more total points.
func (r *StatsRepository) CountAbove(ctx context.Context, totalPoints int64) (int64, error) {
	var n int64
	err := r.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_stats WHERE total_points > $1`, totalPoints,
	).Scan(&n)
	if err != nil {
		return 0, mapError("stats", "CountAbove", err, nil)
	}
	return n, nil
}

// Reset zeroes a point bucket for every user.
func (r *StatsRepository) Reset(ctx context.Context, field stats.Field) (int64, error) {
	if !field.IsResettable() {
		return 0, stats.ErrNotResettable
	}
	tag, err := r.q.Exec(ctx,
		fmt.Sprintf(`UPDATE user_stats SET %s = 0, updated_at = $1`, field.Column()),
		r.clock.Now())
	if err != nil {
		return 0, mapError("stats", "Reset", err, nil)
	}
	return tag.RowsAffected(), nil
}

// UpdateRanks writes ROW_NUMBER() over the leaderboard order into rank.
func (r *StatsRepository) UpdateRanks(ctx context.Context) (int64, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE user_stats AS us
		SET rank = ranked.position
		FROM (
			SELECT user_id,
			       ROW_NUMBER() OVER (ORDER BY total_points DESC, last_updated ASC, user_id ASC) AS position
			FROM user_stats
		) AS ranked
		WHERE us.user_id = ranked.user_id`)
	if err != nil {
		return 0, mapError("stats", "UpdateRanks", err, nil)
	}
	return tag.RowsAffected(), nil
}
