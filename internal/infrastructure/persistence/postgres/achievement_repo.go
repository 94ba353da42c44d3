package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/coursehub/gamification/internal/domain/achievement"
	"github.com/coursehub/gamification/pkg/timeutil"
)

// AchievementRepository implements achievement.Repository using PostgreSQL.
type AchievementRepository struct {
	q     Querier
	clock timeutil.Clock
}

const achievementColumns = `a.id, a.name, a.description, a.achievement_type, a.threshold,
	a.points_awarded, COALESCE(a.icon_url, ''), a.created_at, a.updated_at`

// Catalog returns every achievement ordered by type, threshold and name.
func (r *AchievementRepository) Catalog(ctx context.Context) ([]*achievement.Achievement, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+achievementColumns+`
		FROM achievements a
		ORDER BY a.achievement_type, a.threshold, a.name`)
	if err != nil {
		return nil, mapError("achievement", "Catalog", err, nil)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*achievement.Achievement, error) {
		return scanAchievement(row)
	})
	if err != nil {
		return nil, mapError("achievement", "Catalog", err, nil)
	}
	return out, nil
}

// Get returns one catalog entry.
func (r *AchievementRepository) Get(ctx context.Context, id string) (*achievement.Achievement, error) {
	a, err := scanAchievement(r.q.QueryRow(ctx,
		`SELECT `+achievementColumns+` FROM achievements a WHERE a.id = $1`, id))
	if err != nil {
		return nil, mapError("achievement", "Get", err, achievement.ErrAchievementNotFound)
	}
	return a, nil
}

// Create inserts a catalog entry.
func (r *AchievementRepository) Create(ctx context.Context, a *achievement.Achievement) error {
	now := r.clock.Now()
	if a.ID == "" {
		a.ID = newID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	_, err := r.q.Exec(ctx, `
		INSERT INTO achievements
			(id, name, description, achievement_type, threshold, points_awarded, icon_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)`,
		a.ID, a.Name, a.Description, a.Type.String(), a.Threshold, a.PointsAwarded, a.IconURL,
		a.CreatedAt, a.UpdatedAt)
	return mapError("achievement", "Create", err, nil)
}

// EarnedIDs returns the ids of achievements the user holds.
func (r *AchievementRepository) EarnedIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	rows, err := r.q.Query(ctx,
		`SELECT achievement_id FROM user_achievements WHERE user_id = $1`, userID)
	if err != nil {
		return nil, mapError("achievement", "EarnedIDs", err, nil)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, mapError("achievement", "EarnedIDs", err, nil)
	}
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

// Grant inserts the grant with ON CONFLICT DO NOTHING. When the row already
// existed the stored grant is returned with inserted=false.
func (r *AchievementRepository) Grant(ctx context.Context, userID, achievementID string, earnedAt time.Time) (*achievement.UserAchievement, bool, error) {
	now := r.clock.Now()
	ua := &achievement.UserAchievement{
		ID:            newID(),
		UserID:        userID,
		AchievementID: achievementID,
		EarnedAt:      earnedAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	tag, err := r.q.Exec(ctx, `
		INSERT INTO user_achievements (id, user_id, achievement_id, earned_at, notified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, FALSE, $5, $5)
		ON CONFLICT (user_id, achievement_id) DO NOTHING`,
		ua.ID, userID, achievementID, earnedAt, now)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return nil, false, achievement.ErrAchievementNotFound
		}
		return nil, false, mapError("achievement", "Grant", err, nil)
	}
	if tag.RowsAffected() == 1 {
		return ua, true, nil
	}

	err = r.q.QueryRow(ctx, `
		SELECT id, earned_at, notified, created_at, updated_at
		FROM user_achievements WHERE user_id = $1 AND achievement_id = $2`,
		userID, achievementID,
	).Scan(&ua.ID, &ua.EarnedAt, &ua.Notified, &ua.CreatedAt, &ua.UpdatedAt)
	if err != nil {
		return nil, false, mapError("achievement", "Grant", err, nil)
	}
	return ua, false, nil
}

// ListEarned returns the user's grants joined to the catalog, newest first.
func (r *AchievementRepository) ListEarned(ctx context.Context, userID string) ([]*achievement.Earned, error) {
	return r.listJoined(ctx, "ListEarned", `
		SELECT ua.id, ua.user_id, ua.achievement_id, ua.earned_at, ua.notified, ua.created_at, ua.updated_at,
		       `+achievementColumns+`
		FROM user_achievements ua
		JOIN achievements a ON a.id = ua.achievement_id
		WHERE ua.user_id = $1
		ORDER BY ua.earned_at DESC, ua.id ASC`, userID)
}

// ListUnnotified returns unnotified grants, oldest first, locked FOR UPDATE.
func (r *AchievementRepository) ListUnnotified(ctx context.Context, userID string) ([]*achievement.Earned, error) {
	return r.listJoined(ctx, "ListUnnotified", `
		SELECT ua.id, ua.user_id, ua.achievement_id, ua.earned_at, ua.notified, ua.created_at, ua.updated_at,
		       `+achievementColumns+`
		FROM user_achievements ua
		JOIN achievements a ON a.id = ua.achievement_id
		WHERE ua.user_id = $1 AND ua.notified = FALSE
		ORDER BY ua.earned_at ASC, ua.id ASC
		FOR UPDATE OF ua`, userID)
}

// MarkNotified flips notified for the given grants of the user.
func (r *AchievementRepository) MarkNotified(ctx context.Context, userID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE user_achievements
		SET notified = TRUE, updated_at = $3
		WHERE user_id = $1 AND id = ANY($2) AND notified = FALSE`,
		userID, ids, r.clock.Now())
	if err != nil {
		return 0, mapError("achievement", "MarkNotified", err, nil)
	}
	return tag.RowsAffected(), nil
}

func (r *AchievementRepository) listJoined(ctx context.Context, op, query string, args ...any) ([]*achievement.Earned, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError("achievement", op, err, nil)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*achievement.Earned, error) {
		var e achievement.Earned
		var t string
		err := row.Scan(
			&e.ID, &e.UserID, &e.AchievementID, &e.EarnedAt, &e.Notified, &e.UserAchievement.CreatedAt, &e.UserAchievement.UpdatedAt,
			&e.Achievement.ID, &e.Achievement.Name, &e.Achievement.Description, &t, &e.Achievement.Threshold,
			&e.Achievement.PointsAwarded, &e.Achievement.IconURL, &e.Achievement.CreatedAt, &e.Achievement.UpdatedAt,
		)
		e.Achievement.Type = achievement.Type(t)
		return &e, err
	})
	if err != nil {
		return nil, mapError("achievement", op, err, nil)
	}
	return out, nil
}

func scanAchievement(row pgx.Row) (*achievement.Achievement, error) {
	var a achievement.Achievement
	var t string
	err := row.Scan(&a.ID, &a.Name, &a.Description, &t, &a.Threshold,
		&a.PointsAwarded, &a.IconURL, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Type = achievement.Type(t)
	return &a, nil
}
