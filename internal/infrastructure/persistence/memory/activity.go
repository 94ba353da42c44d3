package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/coursehub/gamification/internal/domain/activity"
)

type activityRepo struct {
	s      *Store
	locked bool
}

func (r *activityRepo) Append(ctx context.Context, entry *activity.Entry) (string, error) {
	var id string
	err := r.s.run(r.locked, func(db *tables) error {
		cp := *entry
		if cp.ID == "" {
			cp.ID = newID()
		}
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = r.s.now()
		}
		db.entries = append(db.entries, &cp)
		id = cp.ID
		return nil
	})
	return id, err
}

// newestFirst returns copies of the matching entries ordered by createdAt
// descending, later appends first on equal timestamps.
func newestFirst(db *tables, keep func(*activity.Entry) bool) []*activity.Entry {
	out := make([]*activity.Entry, 0)
	for i := len(db.entries) - 1; i >= 0; i-- {
		if keep(db.entries[i]) {
			cp := *db.entries[i]
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func window(entries []*activity.Entry, limit, offset int) []*activity.Entry {
	if offset >= len(entries) {
		return []*activity.Entry{}
	}
	end := len(entries)
	if limit > 0 {
		end = min(end, offset+limit)
	}
	return entries[offset:end]
}

func (r *activityRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*activity.Entry, error) {
	var out []*activity.Entry
	err := r.s.run(r.locked, func(db *tables) error {
		all := newestFirst(db, func(e *activity.Entry) bool { return e.UserID == userID })
		out = window(all, limit, offset)
		return nil
	})
	return out, err
}

func (r *activityRepo) ListRecent(ctx context.Context, limit int) ([]*activity.Entry, error) {
	var out []*activity.Entry
	err := r.s.run(r.locked, func(db *tables) error {
		all := newestFirst(db, func(*activity.Entry) bool { return true })
		out = window(all, limit, 0)
		return nil
	})
	return out, err
}

// LockUser is a no-op: WithinTx already holds the store mutex.
func (r *activityRepo) LockUser(context.Context, string) error { return nil }

func (r *activityRepo) HasEntrySince(ctx context.Context, userID string, t activity.Type, since time.Time) (bool, error) {
	found := false
	err := r.s.run(r.locked, func(db *tables) error {
		for _, e := range db.entries {
			if e.UserID == userID && e.Type == t && !e.CreatedAt.Before(since) {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (r *activityRepo) HasEntryForEntity(ctx context.Context, userID string, t activity.Type, entityID string) (bool, error) {
	found := false
	err := r.s.run(r.locked, func(db *tables) error {
		for _, e := range db.entries {
			if e.UserID == userID && e.Type == t && e.EntityID == entityID {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (r *activityRepo) UsersActiveBetween(ctx context.Context, from, to time.Time, exclude []activity.Type) ([]string, error) {
	var users []string
	err := r.s.run(r.locked, func(db *tables) error {
		seen := make(map[string]struct{})
		for _, e := range db.entries {
			if e.CreatedAt.Before(from) || !e.CreatedAt.Before(to) || slices.Contains(exclude, e.Type) {
				continue
			}
			if _, ok := seen[e.UserID]; !ok {
				seen[e.UserID] = struct{}{}
				users = append(users, e.UserID)
			}
		}
		return nil
	})
	sort.Strings(users)
	return users, err
}

func (r *activityRepo) SumPoints(ctx context.Context, userID string) (int64, error) {
	var sum int64
	err := r.s.run(r.locked, func(db *tables) error {
		for _, e := range db.entries {
			if e.UserID == userID {
				sum += int64(e.Points)
			}
		}
		return nil
	})
	return sum, err
}
