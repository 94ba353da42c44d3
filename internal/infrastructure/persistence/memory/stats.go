package memory

import (
	"context"

	"github.com/coursehub/gamification/internal/domain/leaderboard"
	"github.com/coursehub/gamification/internal/domain/stats"
)

type statsRepo struct {
	s      *Store
	locked bool
}

func (r *statsRepo) Increment(ctx context.Context, userID string, deltas ...stats.FieldDelta) error {
	if err := stats.ValidateDeltas(userID, deltas); err != nil {
		return err
	}
	return r.s.run(r.locked, func(db *tables) error {
		now := r.s.now()
		row, ok := db.stats[userID]
		if !ok {
			row = &stats.UserStats{
				ID:          newID(),
				UserID:      userID,
				LastUpdated: now,
				CreatedAt:   now,
			}
			db.stats[userID] = row
		}
		if row.Apply(deltas) {
			row.LastUpdated = now
		}
		row.UpdatedAt = now
		return nil
	})
}

func (r *statsRepo) Get(ctx context.Context, userID string) (*stats.UserStats, error) {
	var out *stats.UserStats
	err := r.s.run(r.locked, func(db *tables) error {
		row, ok := db.stats[userID]
		if !ok {
			return stats.ErrStatsNotFound
		}
		cp := *row
		out = &cp
		return nil
	})
	return out, err
}

func (r *statsRepo) CountAbove(ctx context.Context, totalPoints int64) (int64, error) {
	var n int64
	err := r.s.run(r.locked, func(db *tables) error {
		for _, row := range db.stats {
			if row.TotalPoints > totalPoints {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *statsRepo) Reset(ctx context.Context, field stats.Field) (int64, error) {
	if !field.IsResettable() {
		return 0, stats.ErrNotResettable
	}
	var n int64
	err := r.s.run(r.locked, func(db *tables) error {
		now := r.s.now()
		for _, row := range db.stats {
			switch field {
			case stats.FieldWeeklyPoints:
				row.WeeklyPoints = 0
			case stats.FieldMonthlyPoints:
				row.MonthlyPoints = 0
			}
			row.UpdatedAt = now
			n++
		}
		return nil
	})
	return n, err
}

func (r *statsRepo) UpdateRanks(ctx context.Context) (int64, error) {
	var n int64
	err := r.s.run(r.locked, func(db *tables) error {
		rows := make([]leaderboard.Row, 0, len(db.stats))
		for _, row := range db.stats {
			rows = append(rows, leaderboard.Row{UserID: row.UserID, Points: row.TotalPoints, ReachedAt: row.LastUpdated})
		}
		leaderboard.SortRows(rows)
		for i, row := range rows {
			rank := i + 1
			db.stats[row.UserID].Rank = &rank
			n++
		}
		return nil
	})
	return n, err
}
