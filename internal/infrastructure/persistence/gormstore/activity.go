package gormstore

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/coursehub/gamification/internal/domain/activity"
	"github.com/coursehub/gamification/pkg/timeutil"
)

type activityRepo struct {
	db    *gorm.DB
	clock timeutil.Clock
}

func (r *activityRepo) Append(ctx context.Context, entry *activity.Entry) (string, error) {
	rec := activityRecord{
		ID:           entry.ID,
		UserID:       entry.UserID,
		ActivityType: entry.Type.String(),
		EntityID:     nullable(entry.EntityID),
		PointsEarned: entry.Points,
		CreatedAt:    entry.CreatedAt,
	}
	if rec.ID == "" {
		rec.ID = newID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.clock.Now()
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return "", mapError("activity", "Append", err, nil)
	}
	return rec.ID, nil
}

func (r *activityRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*activity.Entry, error) {
	var recs []activityRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).Offset(offset).
		Find(&recs).Error
	if err != nil {
		return nil, mapError("activity", "ListByUser", err, nil)
	}
	return toEntries(recs), nil
}

func (r *activityRepo) ListRecent(ctx context.Context, limit int) ([]*activity.Entry, error) {
	var recs []activityRecord
	err := r.db.WithContext(ctx).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, mapError("activity", "ListRecent", err, nil)
	}
	return toEntries(recs), nil
}

// LockUser takes a transaction-scoped advisory lock on postgres. SQLite
// serializes write transactions on its own.
func (r *activityRepo) LockUser(ctx context.Context, userID string) error {
	if r.db.Dialector.Name() != DialectPostgres {
		return nil
	}
	if err := r.db.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(hashtext(?))", userID).Error; err != nil {
		return mapError("activity", "LockUser", err, nil)
	}
	return nil
}

func (r *activityRepo) HasEntrySince(ctx context.Context, userID string, t activity.Type, since time.Time) (bool, error) {
	return r.exists(ctx, "HasEntrySince",
		r.db.Where("user_id = ? AND activity_type = ? AND created_at >= ?", userID, t.String(), since))
}

func (r *activityRepo) HasEntryForEntity(ctx context.Context, userID string, t activity.Type, entityID string) (bool, error) {
	return r.exists(ctx, "HasEntryForEntity",
		r.db.Where("user_id = ? AND activity_type = ? AND entity_id = ?", userID, t.String(), entityID))
}

func (r *activityRepo) exists(ctx context.Context, op string, scope *gorm.DB) (bool, error) {
	var n int64
	err := scope.WithContext(ctx).Model(&activityRecord{}).Limit(1).Count(&n).Error
	if err != nil {
		return false, mapError("activity", op, err, nil)
	}
	return n > 0, nil
}

func (r *activityRepo) UsersActiveBetween(ctx context.Context, from, to time.Time, exclude []activity.Type) ([]string, error) {
	q := r.db.WithContext(ctx).Model(&activityRecord{}).
		Where("created_at >= ? AND created_at < ?", from, to)
	if len(exclude) > 0 {
		q = q.Where("activity_type NOT IN ?", typeStrings(exclude))
	}
	var users []string
	if err := q.Distinct("user_id").Order("user_id").Pluck("user_id", &users).Error; err != nil {
		return nil, mapError("activity", "UsersActiveBetween", err, nil)
	}
	return users, nil
}

func (r *activityRepo) SumPoints(ctx context.Context, userID string) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).Model(&activityRecord{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(points_earned), 0)").
		Scan(&sum).Error
	if err != nil {
		return 0, mapError("activity", "SumPoints", err, nil)
	}
	return sum, nil
}

func toEntries(recs []activityRecord) []*activity.Entry {
	out := make([]*activity.Entry, len(recs))
	for i := range recs {
		out[i] = recs[i].toDomain()
	}
	return out
}
