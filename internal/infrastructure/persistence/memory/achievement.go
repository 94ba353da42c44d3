package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/coursehub/gamification/internal/domain/achievement"
)

type achievementRepo struct {
	s      *Store
	locked bool
}

func sortCatalog(list []*achievement.Achievement) {
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.Threshold != b.Threshold {
			return a.Threshold < b.Threshold
		}
		return a.Name < b.Name
	})
}

func (r *achievementRepo) Catalog(ctx context.Context) ([]*achievement.Achievement, error) {
	var out []*achievement.Achievement
	err := r.s.run(r.locked, func(db *tables) error {
		for _, a := range db.achievements {
			cp := *a
			out = append(out, &cp)
		}
		return nil
	})
	sortCatalog(out)
	return out, err
}

func (r *achievementRepo) Get(ctx context.Context, id string) (*achievement.Achievement, error) {
	var out *achievement.Achievement
	err := r.s.run(r.locked, func(db *tables) error {
		a, ok := db.achievements[id]
		if !ok {
			return achievement.ErrAchievementNotFound
		}
		cp := *a
		out = &cp
		return nil
	})
	return out, err
}

func (r *achievementRepo) Create(ctx context.Context, a *achievement.Achievement) error {
	return r.s.run(r.locked, func(db *tables) error {
		now := r.s.now()
		if a.ID == "" {
			a.ID = newID()
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		a.UpdatedAt = now
		cp := *a
		db.achievements[a.ID] = &cp
		return nil
	})
}

func (r *achievementRepo) EarnedIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	err := r.s.run(r.locked, func(db *tables) error {
		for k := range db.grants {
			if k.userID == userID {
				out[k.achievementID] = struct{}{}
			}
		}
		return nil
	})
	return out, err
}

func (r *achievementRepo) Grant(ctx context.Context, userID, achievementID string, earnedAt time.Time) (*achievement.UserAchievement, bool, error) {
	var (
		out      *achievement.UserAchievement
		inserted bool
	)
	err := r.s.run(r.locked, func(db *tables) error {
		if _, ok := db.achievements[achievementID]; !ok {
			return achievement.ErrAchievementNotFound
		}
		key := grantKey{userID: userID, achievementID: achievementID}
		ua, ok := db.grants[key]
		if !ok {
			now := r.s.now()
			ua = &achievement.UserAchievement{
				ID:            newID(),
				UserID:        userID,
				AchievementID: achievementID,
				EarnedAt:      earnedAt,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			db.grants[key] = ua
			inserted = true
		}
		cp := *ua
		out = &cp
		return nil
	})
	return out, inserted, err
}

func joined(db *tables, userID string, keep func(*achievement.UserAchievement) bool) []*achievement.Earned {
	var out []*achievement.Earned
	for k, ua := range db.grants {
		if k.userID != userID || !keep(ua) {
			continue
		}
		a, ok := db.achievements[ua.AchievementID]
		if !ok {
			continue
		}
		out = append(out, &achievement.Earned{UserAchievement: *ua, Achievement: *a})
	}
	return out
}

func (r *achievementRepo) ListEarned(ctx context.Context, userID string) ([]*achievement.Earned, error) {
	var out []*achievement.Earned
	err := r.s.run(r.locked, func(db *tables) error {
		out = joined(db, userID, func(*achievement.UserAchievement) bool { return true })
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EarnedAt.Equal(out[j].EarnedAt) {
			return out[i].EarnedAt.After(out[j].EarnedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func (r *achievementRepo) ListUnnotified(ctx context.Context, userID string) ([]*achievement.Earned, error) {
	var out []*achievement.Earned
	err := r.s.run(r.locked, func(db *tables) error {
		out = joined(db, userID, func(ua *achievement.UserAchievement) bool { return !ua.Notified })
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EarnedAt.Equal(out[j].EarnedAt) {
			return out[i].EarnedAt.Before(out[j].EarnedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func (r *achievementRepo) MarkNotified(ctx context.Context, userID string, ids []string) (int64, error) {
	var n int64
	err := r.s.run(r.locked, func(db *tables) error {
		now := r.s.now()
		for k, ua := range db.grants {
			if k.userID == userID && !ua.Notified && slices.Contains(ids, ua.ID) {
				ua.Notified = true
				ua.UpdatedAt = now
				n++
			}
		}
		return nil
	})
	return n, err
}
