package memory

import (
	"context"
	"slices"
	"sort"

	"github.com/coursehub/gamification/internal/domain/activity"
	"github.com/coursehub/gamification/internal/domain/leaderboard"
	"github.com/coursehub/gamification/internal/domain/shared"
	"github.com/coursehub/gamification/internal/domain/stats"
)

type leaderboardRepo struct {
	s      *Store
	locked bool
}

func (r *leaderboardRepo) TopByCounter(ctx context.Context, field stats.Field, limit, offset int) ([]leaderboard.Row, error) {
	if !field.IsPoints() {
		return nil, stats.ErrInvalidField
	}
	var out []leaderboard.Row
	err := r.s.run(r.locked, func(db *tables) error {
		rows := make([]leaderboard.Row, 0, len(db.stats))
		for _, s := range db.stats {
			rows = append(rows, leaderboard.Row{UserID: s.UserID, Points: s.Get(field), ReachedAt: s.LastUpdated})
		}
		leaderboard.SortRows(rows)
		out = slices.Clone(leaderboard.PageRows(rows, shared.Page{Limit: limit, Offset: offset}))
		return nil
	})
	return out, err
}

func (r *leaderboardRepo) TopByCourse(ctx context.Context, courseID string, types []activity.Type, limit, offset int) ([]leaderboard.Row, error) {
	var out []leaderboard.Row
	err := r.s.run(r.locked, func(db *tables) error {
		byUser := make(map[string]*leaderboard.Row)
		for _, e := range db.entries {
			if e.EntityID != courseID || !slices.Contains(types, e.Type) {
				continue
			}
			row, ok := byUser[e.UserID]
			if !ok {
				row = &leaderboard.Row{UserID: e.UserID}
				byUser[e.UserID] = row
			}
			row.Points += int64(e.Points)
			if e.CreatedAt.After(row.ReachedAt) {
				row.ReachedAt = e.CreatedAt
			}
		}
		rows := make([]leaderboard.Row, 0, len(byUser))
		for _, row := range byUser {
			rows = append(rows, *row)
		}
		leaderboard.SortRows(rows)
		out = slices.Clone(leaderboard.PageRows(rows, shared.Page{Limit: limit, Offset: offset}))
		return nil
	})
	return out, err
}

func (r *leaderboardRepo) CourseIDs(ctx context.Context, types []activity.Type) ([]string, error) {
	var out []string
	err := r.s.run(r.locked, func(db *tables) error {
		seen := make(map[string]struct{})
		for _, e := range db.entries {
			if e.EntityID == "" || !slices.Contains(types, e.Type) {
				continue
			}
			if _, ok := seen[e.EntityID]; !ok {
				seen[e.EntityID] = struct{}{}
				out = append(out, e.EntityID)
			}
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}
