package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/coursehub/gamification/internal/domain/streak"
	"github.com/coursehub/gamification/pkg/timeutil"
)

// StreakRepository implements streak.Repository using PostgreSQL.
type StreakRepository struct {
	q     Querier
	clock timeutil.Clock
}

const streakColumns = `id, user_id, current_streak, longest_streak, last_activity_date, created_at, updated_at`

// Record creates the row on first activity. Otherwise it locks the row with
// SELECT ... FOR UPDATE, applies the transition and writes it back, all inside
// one transaction (a savepoint when already in one).
func (r *StreakRepository) Record(ctx context.Context, userID string, today time.Time) (*streak.Streak, bool, error) {
	if userID == "" {
		return nil, false, streak.ErrInvalidUserID
	}

	var (
		out     *streak.Streak
		changed bool
	)
	err := pgx.BeginFunc(ctx, r.q, func(tx pgx.Tx) error {
		now := r.clock.Now()
		fresh := streak.Start(userID, today)
		tag, err := tx.Exec(ctx, `
			INSERT INTO user_streaks (`+streakColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
			ON CONFLICT (user_id) DO NOTHING`,
			newID(), userID, fresh.CurrentStreak, fresh.LongestStreak, today, now)
		if err != nil {
			return err
		}
		changed = tag.RowsAffected() == 1

		s, err := scanStreak(tx.QueryRow(ctx,
			`SELECT `+streakColumns+` FROM user_streaks WHERE user_id = $1 FOR UPDATE`, userID))
		if err != nil {
			return err
		}
		if !changed && s.RecordActivity(today) {
			s.UpdatedAt = now
			_, err = tx.Exec(ctx, `
				UPDATE user_streaks
				SET current_streak = $2, longest_streak = $3, last_activity_date = $4, updated_at = $5
				WHERE user_id = $1`,
				userID, s.CurrentStreak, s.LongestStreak, s.LastActivityDate, now)
			if err != nil {
				return err
			}
			changed = true
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, false, mapError("streak", "Record", err, nil)
	}
	return out, changed, nil
}

// Get returns the stored row or streak.ErrStreakNotFound.
func (r *StreakRepository) Get(ctx context.Context, userID string) (*streak.Streak, error) {
	s, err := scanStreak(r.q.QueryRow(ctx,
		`SELECT `+streakColumns+` FROM user_streaks WHERE user_id = $1`, userID))
	if err != nil {
		return nil, mapError("streak", "Get", err, streak.ErrStreakNotFound)
	}
	return s, nil
}

// ResetLapsed zeroes current_streak where the last activity is before yesterday.
func (r *StreakRepository) ResetLapsed(ctx context.Context, today time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE user_streaks
		SET current_streak = 0, updated_at = $2
		WHERE current_streak <> 0 AND last_activity_date < $1`,
		today.AddDate(0, 0, -1), r.clock.Now())
	if err != nil {
		return 0, mapError("streak", "ResetLapsed", err, nil)
	}
	return tag.RowsAffected(), nil
}

// Top returns streaks ordered by current, then longest, then user id.
func (r *StreakRepository) Top(ctx context.Context, limit int) ([]*streak.Streak, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+streakColumns+`
		FROM user_streaks
		ORDER BY current_streak DESC, longest_streak DESC, user_id ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, mapError("streak", "Top", err, nil)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*streak.Streak, error) {
		return scanStreak(row)
	})
	if err != nil {
		return nil, mapError("streak", "Top", err, nil)
	}
	return out, nil
}

func scanStreak(row pgx.Row) (*streak.Streak, error) {
	var s streak.Streak
	var last time.Time
	if err := row.Scan(&s.ID, &s.UserID, &s.CurrentStreak, &s.LongestStreak, &last, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.LastActivityDate = timeutil.Date(last.Year(), last.Month(), last.Day())
	return &s, nil
}
