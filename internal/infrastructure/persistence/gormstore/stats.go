package gormstore

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/coursehub/gamification/internal/domain/stats"
	"github.com/coursehub/gamification/pkg/timeutil"
)

type statsRepo struct {
	db    *gorm.DB
	clock timeutil.Clock
}

// Increment is one INSERT ... ON CONFLICT (user_id) DO UPDATE adding each delta
// to the stored value.
func (r *statsRepo) Increment(ctx context.Context, userID string, deltas ...stats.FieldDelta) error {
	if err := stats.ValidateDeltas(userID, deltas); err != nil {
		return err
	}

	now := r.clock.Now()
	row := statsRecord{
		ID:          newID(),
		UserID:      userID,
		LastUpdated: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	row.apply(deltas)

	set := map[string]any{"updated_at": gorm.Expr("excluded.updated_at")}
	for _, d := range deltas {
		col := d.Field.Column()
		set[col] = gorm.Expr(fmt.Sprintf("user_stats.%s + excluded.%s", col, col))
	}
	if stats.TouchesPoints(deltas) {
		set["last_updated"] = gorm.Expr("excluded.last_updated")
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(set),
		}).
		Create(&row).Error
	return mapError("stats", "Increment", err, nil)
}

func (r *statsRecord) apply(deltas []stats.FieldDelta) {
	for _, d := range deltas {
		switch d.Field {
		case stats.FieldTotalPoints:
			r.TotalPoints += d.Delta
		case stats.FieldWeeklyPoints:
			r.WeeklyPoints += d.Delta
		case stats.FieldMonthlyPoints:
			r.MonthlyPoints += d.Delta
		case stats.FieldLessonsCompleted:
			r.LessonsCompleted += d.Delta
		case stats.FieldCoursesCompleted:
			r.CoursesCompleted += d.Delta
		case stats.FieldTotalTimeSpent:
			r.TotalTimeSpent += d.Delta
		}
	}
}

func (r *statsRepo) Get(ctx context.Context, userID string) (*stats.UserStats, error) {
	var rec statsRecord
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&rec).Error; err != nil {
		return nil, mapError("stats", "Get", err, stats.ErrStatsNotFound)
	}
	return rec.toDomain(), nil
}

func (r *statsRepo) CountAbove(ctx context.Context, totalPoints int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&statsRecord{}).
		Where("total_points > ?", totalPoints).
		Count(&n).Error
	if err != nil {
		return 0, mapError("stats", "CountAbove", err, nil)
	}
	return n, nil
}

func (r *statsRepo) Reset(ctx context.Context, field stats.Field) (int64, error) {
	if !field.IsResettable() {
		return 0, stats.ErrNotResettable
	}
	res := r.db.WithContext(ctx).Model(&statsRecord{}).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Updates(map[string]any{field.Column(): 0, "updated_at": r.clock.Now()})
	if res.Error != nil {
		return 0, mapError("stats", "Reset", res.Error, nil)
	}
	return res.RowsAffected, nil
}

// UpdateRanks uses a correlated ROW_NUMBER() subquery so the statement runs on
// both postgres and sqlite.
func (r *statsRepo) UpdateRanks(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE user_stats SET rank = (
			SELECT ranked.position FROM (
				SELECT user_id,
				       ROW_NUMBER() OVER (ORDER BY total_points DESC, last_updated ASC, user_id ASC) AS position
				FROM user_stats
			) AS ranked
			WHERE ranked.user_id = user_stats.user_id
		)`)
	if res.Error != nil {
		return 0, mapError("stats", "UpdateRanks", res.Error, nil)
	}
	return res.RowsAffected, nil
}
