package memory

import (
	"context"
	"sort"
	"time"

	"github.com/coursehub/gamification/internal/domain/streak"
)

type streakRepo struct {
	s      *Store
	locked bool
}

func (r *streakRepo) Record(ctx context.Context, userID string, today time.Time) (*streak.Streak, bool, error) {
	if userID == "" {
		return nil, false, streak.ErrInvalidUserID
	}
	var (
		out     *streak.Streak
		changed bool
	)
	err := r.s.run(r.locked, func(db *tables) error {
		now := r.s.now()
		row, ok := db.streaks[userID]
		if !ok {
			row = streak.Start(userID, today)
			row.ID = newID()
			row.CreatedAt = now
			row.UpdatedAt = now
			db.streaks[userID] = row
			changed = true
		} else if row.RecordActivity(today) {
			row.UpdatedAt = now
			changed = true
		}
		cp := *row
		out = &cp
		return nil
	})
	return out, changed, err
}

func (r *streakRepo) Get(ctx context.Context, userID string) (*streak.Streak, error) {
	var out *streak.Streak
	err := r.s.run(r.locked, func(db *tables) error {
		row, ok := db.streaks[userID]
		if !ok {
			return streak.ErrStreakNotFound
		}
		cp := *row
		out = &cp
		return nil
	})
	return out, err
}

func (r *streakRepo) ResetLapsed(ctx context.Context, today time.Time) (int64, error) {
	var n int64
	err := r.s.run(r.locked, func(db *tables) error {
		now := r.s.now()
		for _, row := range db.streaks {
			if row.NeedsReset(today) {
				row.CurrentStreak = 0
				row.UpdatedAt = now
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *streakRepo) Top(ctx context.Context, limit int) ([]*streak.Streak, error) {
	var out []*streak.Streak
	err := r.s.run(r.locked, func(db *tables) error {
		for _, row := range db.streaks {
			cp := *row
			out = append(out, &cp)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CurrentStreak != out[j].CurrentStreak {
			return out[i].CurrentStreak > out[j].CurrentStreak
		}
		if out[i].LongestStreak != out[j].LongestStreak {
			return out[i].LongestStreak > out[j].LongestStreak
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}
