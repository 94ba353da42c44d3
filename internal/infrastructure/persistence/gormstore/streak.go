package gormstore

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/coursehub/gamification/internal/domain/streak"
	"github.com/coursehub/gamification/pkg/timeutil"
)

type streakRepo struct {
	db    *gorm.DB
	clock timeutil.Clock
}

// Record inserts the first row with ON CONFLICT DO NOTHING, then locks the row
// (postgres only; sqlite serializes writers) and applies the transition.
func (r *streakRepo) Record(ctx context.Context, userID string, today time.Time) (*streak.Streak, bool, error) {
	if userID == "" {
		return nil, false, streak.ErrInvalidUserID
	}

	var (
		out     *streak.Streak
		changed bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := r.clock.Now()
		fresh := streak.Start(userID, today)
		rec := streakRecord{
			ID:               newID(),
			UserID:           userID,
			CurrentStreak:    fresh.CurrentStreak,
			LongestStreak:    fresh.LongestStreak,
			LastActivityDate: datatypes.Date(today),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
		if res.Error != nil {
			return res.Error
		}
		changed = res.RowsAffected == 1

		q := tx.Where("user_id = ?", userID)
		if isPostgres(tx) {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var stored streakRecord
		if err := q.First(&stored).Error; err != nil {
			return err
		}

		s := stored.toDomain()
		if !changed && s.RecordActivity(today) {
			s.UpdatedAt = now
			err := tx.Model(&streakRecord{}).Where("user_id = ?", userID).Updates(map[string]any{
				"current_streak":     s.CurrentStreak,
				"longest_streak":     s.LongestStreak,
				"last_activity_date": datatypes.Date(s.LastActivityDate),
				"updated_at":         now,
			}).Error
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

func (r *streakRepo) Get(ctx context.Context, userID string) (*streak.Streak, error) {
	var rec streakRecord
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&rec).Error; err != nil {
		return nil, mapError("streak", "Get", err, streak.ErrStreakNotFound)
	}
	return rec.toDomain(), nil
}

func (r *streakRepo) ResetLapsed(ctx context.Context, today time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&streakRecord{}).
		Where("current_streak <> 0 AND last_activity_date < ?", datatypes.Date(today.AddDate(0, 0, -1))).
		Updates(map[string]any{"current_streak": 0, "updated_at": r.clock.Now()})
	if res.Error != nil {
		return 0, mapError("streak", "ResetLapsed", res.Error, nil)
	}
	return res.RowsAffected, nil
}

func (r *streakRepo) Top(ctx context.Context, limit int) ([]*streak.Streak, error) {
	var recs []streakRecord
	err := r.db.WithContext(ctx).
		Order("current_streak DESC").Order("longest_streak DESC").Order("user_id ASC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, mapError("streak", "Top", err, nil)
	}
	out := make([]*streak.Streak, len(recs))
	for i := range recs {
		out[i] = recs[i].toDomain()
	}
	return out, nil
}
