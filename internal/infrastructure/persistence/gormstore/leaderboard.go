package gormstore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/coursehub/gamification/internal/domain/activity"
	"github.com/coursehub/gamification/internal/domain/leaderboard"
	"github.com/coursehub/gamification/internal/domain/stats"
)

type leaderboardRepo struct {
	db *gorm.DB
}

type boardRow struct {
	UserID    string
	Points    int64
	ReachedAt flexTime
}

func (r *leaderboardRepo) TopByCounter(ctx context.Context, field stats.Field, limit, offset int) ([]leaderboard.Row, error) {
	if !field.IsPoints() {
		return nil, stats.ErrInvalidField
	}
	col := field.Column()
	var rows []boardRow
	err := r.db.WithContext(ctx).Model(&statsRecord{}).
		Select(fmt.Sprintf("user_id, %s AS points, last_updated AS reached_at", col)).
		Order(col + " DESC").Order("last_updated ASC").Order("user_id ASC").
		Limit(limit).Offset(offset).
		Scan(&rows).Error
	if err != nil {
		return nil, mapError("leaderboard", "TopByCounter", err, nil)
	}
	return toRows(rows), nil
}

func (r *leaderboardRepo) TopByCourse(ctx context.Context, courseID string, types []activity.Type, limit, offset int) ([]leaderboard.Row, error) {
	var rows []boardRow
	err := r.db.WithContext(ctx).Model(&activityRecord{}).
		Select("user_id, SUM(points_earned) AS points, MAX(created_at) AS reached_at").
		Where("entity_id = ? AND activity_type IN ?", courseID, typeStrings(types)).
		Group("user_id").
		Order("points DESC").Order("reached_at ASC").Order("user_id ASC").
		Limit(limit).Offset(offset).
		Scan(&rows).Error
	if err != nil {
		return nil, mapError("leaderboard", "TopByCourse", err, nil)
	}
	return toRows(rows), nil
}

func (r *leaderboardRepo) CourseIDs(ctx context.Context, types []activity.Type) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&activityRecord{}).
		Where("activity_type IN ? AND entity_id IS NOT NULL AND entity_id <> ''", typeStrings(types)).
		Distinct("entity_id").Order("entity_id").
		Pluck("entity_id", &ids).Error
	if err != nil {
		return nil, mapError("leaderboard", "CourseIDs", err, nil)
	}
	return ids, nil
}

func toRows(rows []boardRow) []leaderboard.Row {
	out := make([]leaderboard.Row, len(rows))
	for i, r := range rows {
		out[i] = leaderboard.Row{UserID: r.UserID, Points: r.Points, ReachedAt: time.Time(r.ReachedAt)}
	}
	return out
}

// flexTime scans timestamps that sqlite returns as text for aggregate columns.
type flexTime time.Time

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
}

func (t *flexTime) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*t = flexTime(time.Time{})
		return nil
	case time.Time:
		*t = flexTime(v)
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("gormstore: cannot scan %T into time", value)
	}
}

func (t *flexTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = flexTime(parsed)
			return nil
		}
	}
	return fmt.Errorf("gormstore: unrecognized time %q", s)
}
