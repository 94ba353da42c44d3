package command

import (
	"context"
	"fmt"
	"time"

	"github.com/coursehub/gamification/internal/application/engine"
	"github.com/coursehub/gamification/internal/domain/activity"
	"github.com/coursehub/gamification/internal/domain/leaderboard"
	"github.com/coursehub/gamification/internal/domain/store"
	"github.com/coursehub/gamification/pkg/logger"
	"github.com/coursehub/gamification/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAINTENANCE COMMANDS
// Periodic jobs run by the worker and the admin API. They race with live writes;
// the last write wins.
// ══════════════════════════════════════════════════════════════════════════════

// Job names a maintenance entry point.
type Job string

const (
	JobStreakCheck       Job = "streak_check"
	JobStreakRewards     Job = "streak_rewards"
	JobWeeklyReset       Job = "weekly_reset"
	JobMonthlyReset      Job = "monthly_reset"
	JobLeaderboardWarmup Job = "leaderboard_warmup"
	JobRankUpdate        Job = "rank_update"
)

// Jobs lists every maintenance job.
var Jobs = []Job{
	JobStreakCheck,
	JobStreakRewards,
	JobWeeklyReset,
	JobMonthlyReset,
	JobLeaderboardWarmup,
	JobRankUpdate,
}

// ParseJob converts a wire value into a Job.
func ParseJob(s string) (Job, error) {
	for _, j := range Jobs {
		if string(j) == s {
			return j, nil
		}
	}
	return "", invalid("maintenance", "unknown job: "+s)
}

// MaintenanceResult reports what a job did.
type MaintenanceResult struct {
	Job          Job           `json:"job"`
	RowsAffected int64         `json:"rows_affected"`
	Duration     time.Duration `json:"duration_ns"`
}

// MaintenanceHandler runs the maintenance jobs.
type MaintenanceHandler struct {
	store        store.Store
	stats        *engine.StatsEngine
	streaks      *engine.StreakEngine
	leaderboards *engine.LeaderboardEngine
	clock        timeutil.Clock
	log          *logger.Logger
}

// NewMaintenanceHandler creates a new MaintenanceHandler.
func NewMaintenanceHandler(
	st store.Store,
	stats *engine.StatsEngine,
	streaks *engine.StreakEngine,
	leaderboards *engine.LeaderboardEngine,
	clock timeutil.Clock,
	log *logger.Logger,
) *MaintenanceHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &MaintenanceHandler{
		store:        st,
		stats:        stats,
		streaks:      streaks,
		leaderboards: leaderboards,
		clock:        clock,
		log:          log.With(logger.Component("maintenance")),
	}
}

// Run executes one job by name.
func (h *MaintenanceHandler) Run(ctx context.Context, job Job) (*MaintenanceResult, error) {
	start := time.Now()

	var (
		n   int64
		err error
	)
	switch job {
	case JobStreakCheck:
		n, err = h.RunDailyStreakCheck(ctx)
	case JobStreakRewards:
		n, err = h.RunStreakRewards(ctx)
	case JobWeeklyReset:
		n, err = h.RunWeeklyPointsReset(ctx)
	case JobMonthlyReset:
		n, err = h.RunMonthlyPointsReset(ctx)
	case JobLeaderboardWarmup:
		n, err = h.RunLeaderboardWarmup(ctx)
	case JobRankUpdate:
		n, err = h.RunRankUpdate(ctx)
	default:
		return nil, invalid("maintenance", "unknown job: "+string(job))
	}
	if err != nil {
		h.log.Error("maintenance job failed", logger.Operation(string(job)), logger.Err(err))
		return nil, fmt.Errorf("maintenance %s: %w", job, err)
	}

	res := &MaintenanceResult{Job: job, RowsAffected: n, Duration: time.Since(start)}
	h.log.Info("maintenance job finished",
		logger.Operation(string(job)),
		logger.RowsAffected(n),
		logger.Latency(res.Duration),
	)
	return res, nil
}

// RunDailyStreakCheck zeroes lapsed streaks.
func (h *MaintenanceHandler) RunDailyStreakCheck(ctx context.Context) (int64, error) {
	return h.streaks.CheckAndUpdateAll(ctx)
}

// RunWeeklyPointsReset zeroes weekly points and drops cached weekly boards.
func (h *MaintenanceHandler) RunWeeklyPointsReset(ctx context.Context) (int64, error) {
	n, err := h.stats.ResetWeeklyPoints(ctx)
	if err != nil {
		return 0, err
	}
	h.leaderboards.Invalidate(ctx, leaderboard.ScopeWeekly, "")
	return n, nil
}

// RunMonthlyPointsReset zeroes monthly points and drops cached monthly boards.
func (h *MaintenanceHandler) RunMonthlyPointsReset(ctx context.Context) (int64, error) {
	n, err := h.stats.ResetMonthlyPoints(ctx)
	if err != nil {
		return 0, err
	}
	h.leaderboards.Invalidate(ctx, leaderboard.ScopeMonthly, "")
	return n, nil
}

// RunLeaderboardWarmup rebuilds the cached boards and returns how many were built.
func (h *MaintenanceHandler) RunLeaderboardWarmup(ctx context.Context) (int64, error) {
	res, err := h.leaderboards.Warmup(ctx)
	if err != nil {
		return 0, err
	}
	return int64(res.Boards), nil
}

// RunRankUpdate stores every user's leaderboard position.
func (h *MaintenanceHandler) RunRankUpdate(ctx context.Context) (int64, error) {
	return h.stats.UpdateRanks(ctx)
}

// streakRewardIgnored are entry types that do not count as activity for the
// streak reward, so the reward cannot feed itself.
var streakRewardIgnored = []activity.Type{
	activity.TypeMaintainStreak,
	activity.TypeEarnAchievement,
}

// RunStreakRewards awards MaintainStreak points to every user active yesterday,
// at most once per calendar day. It returns the number of users rewarded.
func (h *MaintenanceHandler) RunStreakRewards(ctx context.Context) (int64, error) {
	loc := h.clock.Location()
	startToday := timeutil.StartOfDay(h.clock.Now(), loc)
	startYesterday := timeutil.StartOfDay(startToday.Add(-12*time.Hour), loc)

	users, err := h.store.Activities().UsersActiveBetween(ctx, startYesterday, startToday, streakRewardIgnored)
	if err != nil {
		return 0, fmt.Errorf("list active users: %w", err)
	}

	points := activity.DefaultPoints(activity.TypeMaintainStreak)
	var rewarded int64
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return rewarded, err
		}
		awarded := false
		err := h.store.WithinTx(ctx, func(tx store.Repositories) error {
			done, err := tx.Activities().HasEntrySince(ctx, userID, activity.TypeMaintainStreak, startToday)
			if err != nil || done {
				return err
			}
			if _, err := h.stats.AddPoints(ctx, tx, userID, points, activity.TypeMaintainStreak, ""); err != nil {
				return err
			}
			awarded = true
			return nil
		})
		if err != nil {
			h.log.Warn("streak reward failed", logger.UserID(userID), logger.Err(err))
			continue
		}
		if awarded {
			rewarded++
		}
	}
	return rewarded, nil
}
