package gormstore

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/coursehub/gamification/internal/domain/achievement"
	"github.com/coursehub/gamification/pkg/timeutil"
)

type achievementRepo struct {
	db    *gorm.DB
	clock timeutil.Clock
}

func (r *achievementRepo) Catalog(ctx context.Context) ([]*achievement.Achievement, error) {
	var recs []achievementRecord
	err := r.db.WithContext(ctx).
		Order("achievement_type").Order("threshold").Order("name").
		Find(&recs).Error
	if err != nil {
		return nil, mapError("achievement", "Catalog", err, nil)
	}
	out := make([]*achievement.Achievement, len(recs))
	for i := range recs {
		out[i] = recs[i].toDomain()
	}
	return out, nil
}

func (r *achievementRepo) Get(ctx context.Context, id string) (*achievement.Achievement, error) {
	var rec achievementRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, mapError("achievement", "Get", err, achievement.ErrAchievementNotFound)
	}
	return rec.toDomain(), nil
}

func (r *achievementRepo) Create(ctx context.Context, a *achievement.Achievement) error {
	now := r.clock.Now()
	if a.ID == "" {
		a.ID = newID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	rec := achievementRecord{
		ID:              a.ID,
		Name:            a.Name,
		Description:     a.Description,
		AchievementType: a.Type.String(),
		Threshold:       a.Threshold,
		PointsAwarded:   a.PointsAwarded,
		IconURL:         nullable(a.IconURL),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
	return mapError("achievement", "Create", r.db.WithContext(ctx).Create(&rec).Error, nil)
}

func (r *achievementRepo) EarnedIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&userAchievementRecord{}).
		Where("user_id = ?", userID).
		Pluck("achievement_id", &ids).Error
	if err != nil {
		return nil, mapError("achievement", "EarnedIDs", err, nil)
	}
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

// Grant relies on the (user_id, achievement_id) unique index: a concurrent
// second insert writes nothing and reports inserted=false.
func (r *achievementRepo) Grant(ctx context.Context, userID, achievementID string, earnedAt time.Time) (*achievement.UserAchievement, bool, error) {
	db := r.db.WithContext(ctx)

	var n int64
	if err := db.Model(&achievementRecord{}).Where("id = ?", achievementID).Count(&n).Error; err != nil {
		return nil, false, mapError("achievement", "Grant", err, nil)
	}
	if n == 0 {
		return nil, false, achievement.ErrAchievementNotFound
	}

	now := r.clock.Now()
	rec := userAchievementRecord{
		ID:            newID(),
		UserID:        userID,
		AchievementID: achievementID,
		EarnedAt:      earnedAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "achievement_id"}},
		DoNothing: true,
	}).Create(&rec)
	if res.Error != nil {
		return nil, false, mapError("achievement", "Grant", res.Error, nil)
	}
	if res.RowsAffected == 1 {
		return rec.toDomain(), true, nil
	}

	var stored userAchievementRecord
	err := db.Where("user_id = ? AND achievement_id = ?", userID, achievementID).First(&stored).Error
	if err != nil {
		return nil, false, mapError("achievement", "Grant", err, nil)
	}
	return stored.toDomain(), false, nil
}

func (r *achievementRepo) ListEarned(ctx context.Context, userID string) ([]*achievement.Earned, error) {
	var recs []userAchievementRecord
	err := r.db.WithContext(ctx).
		Joins("Achievement").
		Where("user_achievements.user_id = ?", userID).
		Order("user_achievements.earned_at DESC").Order("user_achievements.id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, mapError("achievement", "ListEarned", err, nil)
	}
	return toEarned(recs), nil
}

func (r *achievementRepo) ListUnnotified(ctx context.Context, userID string) ([]*achievement.Earned, error) {
	q := r.db.WithContext(ctx).
		Joins("Achievement").
		Where("user_achievements.user_id = ? AND user_achievements.notified = ?", userID, false).
		Order("user_achievements.earned_at ASC").Order("user_achievements.id ASC")
	if isPostgres(r.db) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: "user_achievements"}})
	}
	var recs []userAchievementRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, mapError("achievement", "ListUnnotified", err, nil)
	}
	return toEarned(recs), nil
}

func (r *achievementRepo) MarkNotified(ctx context.Context, userID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Model(&userAchievementRecord{}).
		Where("user_id = ? AND id IN ? AND notified = ?", userID, ids, false).
		Updates(map[string]any{"notified": true, "updated_at": r.clock.Now()})
	if res.Error != nil {
		return 0, mapError("achievement", "MarkNotified", res.Error, nil)
	}
	return res.RowsAffected, nil
}

func toEarned(recs []userAchievementRecord) []*achievement.Earned {
	out := make([]*achievement.Earned, len(recs))
	for i := range recs {
		out[i] = recs[i].toEarned()
	}
	return out
}
