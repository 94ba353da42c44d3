package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/coursehub/gamification/internal/application/command"
	"github.com/coursehub/gamification/internal/application/query"
	"github.com/coursehub/gamification/internal/domain/activity"
	"github.com/coursehub/gamification/internal/domain/leaderboard"
	"github.com/coursehub/gamification/internal/domain/shared"
	"github.com/coursehub/gamification/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GAMIFICATION HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// Application groups the command and query handlers served over HTTP.
type Application struct {
	Leaderboard  *query.GetLeaderboardHandler
	UserStats    *query.GetUserStatsHandler
	Streaks      *query.StreakHandler
	Achievements *query.AchievementHandler
	Activity     *query.ActivityHandler

	RecordEvent        *command.RecordEventHandler
	CompleteCourse     *command.CompleteCourseHandler
	CheckAchievements  *command.CheckAchievementsHandler
	ClaimNotifications *command.ClaimNotificationsHandler
	CreateAchievement  *command.CreateAchievementHandler
	Maintenance        *command.MaintenanceHandler
}

// GamificationHandler serves the /api/v1/gamification routes.
type GamificationHandler struct {
	app Application
	log *logger.Logger
}

// NewGamificationHandler creates a new GamificationHandler.
func NewGamificationHandler(app Application, log *logger.Logger) *GamificationHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GamificationHandler{app: app, log: log.With(logger.Component("http"))}
}

// Register mounts every route on rg. auth must verify the bearer token.
func (h *GamificationHandler) Register(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	rg.Use(auth)

	rg.GET("/leaderboard", h.leaderboardHandler(leaderboard.ScopeGlobal))
	rg.GET("/leaderboard/weekly", h.leaderboardHandler(leaderboard.ScopeWeekly))
	rg.GET("/leaderboard/monthly", h.leaderboardHandler(leaderboard.ScopeMonthly))
	rg.GET("/leaderboard/courses/:courseId", h.leaderboardHandler(leaderboard.ScopeCourse))

	rg.GET("/stats", h.GetMyStats)
	rg.GET("/streaks", h.GetMyStreak)
	rg.GET("/streaks/top", h.GetTopStreaks)

	rg.GET("/achievements", h.GetCatalog)
	rg.GET("/achievements/me", h.GetMyAchievements)
	rg.GET("/achievements/unnotified", h.ClaimUnnotified)
	rg.POST("/achievements/check", h.CheckAchievements)

	rg.POST("/events", h.RecordEvent)
	rg.POST("/courses/:courseId/complete", h.CompleteCourse)

	rg.GET("/activity", h.GetMyActivity)
	rg.GET("/activity/recent", h.GetRecentActivity)

	admin := rg.Group("", RequireAdmin())
	admin.GET("/stats/:userId", h.GetUserStats)
	admin.POST("/achievements", h.CreateAchievement)
	admin.POST("/admin/maintenance/:job", h.RunMaintenance)
}

func (h *GamificationHandler) caller(c *gin.Context) (Identity, bool) {
	id, ok := IdentityFrom(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, CodeUnauthorized, ErrMissingToken.Error())
	}
	return id, ok
}

// ─────────────────────────────────────────────────────────────────────────────
// Leaderboards
// ─────────────────────────────────────────────────────────────────────────────

func (h *GamificationHandler) leaderboardHandler(scope leaderboard.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset, err := paging(c)
		if err != nil {
			HandleError(c, h.log, err)
			return
		}
		board, err := h.app.Leaderboard.Handle(c.Request.Context(), query.GetLeaderboardQuery{
			Scope:    scope,
			CourseID: c.Param("courseId"),
			Limit:    limit,
			Offset:   offset,
		})
		if err != nil {
			HandleError(c, h.log, err)
			return
		}
		RespondPage(c, board, board.Limit, board.Offset)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Stats and streaks
// ─────────────────────────────────────────────────────────────────────────────

// GetMyStats returns the caller's counters, or null before the first event.
func (h *GamificationHandler) GetMyStats(c *gin.Context) {
	id, ok := h.caller(c)
	if !ok {
		return
	}
	h.writeStats(c, id.UserID)
}

// GetUserStats returns another user's counters. Admin only.
func (h *GamificationHandler) GetUserStats(c *gin.Context) {
	h.writeStats(c, c.Param("userId"))
}

func (h *GamificationHandler) writeStats(c *gin.Context, userID string) {
	dto, err := h.app.UserStats.Handle(c.Request.Context(), query.GetUserStatsQuery{UserID: userID})
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	RespondOK(c, dto)
}

// GetMyStreak returns the caller's streak, or null.
func (h *GamificationHandler) GetMyStreak(c *gin.Context) {
	id, ok := h.caller(c)
	if !ok {
		return
	}
	dto, err := h.app.Streaks.UserStreak(c.Request.Context(), query.GetUserStreakQuery{UserID: id.UserID})
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	RespondOK(c, dto)
}

// GetTopStreaks returns the longest current streaks.
func (h *GamificationHandler) GetTopStreaks(c *gin.Context) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	list, err := h.app.Streaks.TopStreaks(c.Request.Context(), query.GetTopStreaksQuery{Limit: limit})
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	RespondOK(c, list)
}

// ─────────────────────────────────────────────────────────────────────────────
// Activity
// ─────────────────────────────────────────────────────────────────────────────

// GetMyActivity returns the caller's ledger, newest first.
func (h *GamificationHandler) GetMyActivity(c *gin.Context) {
	id, ok := h.caller(c)
	if !ok {
		return
	}
	limit, offset, err := paging(c)
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	list, err := h.app.Activity.History(c.Request.Context(), query.GetActivityHistoryQuery{
		UserID: id.UserID,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	RespondPage(c, list, limit, offset)
}

// GetRecentActivity returns the platform-wide feed.
func (h *GamificationHandler) GetRecentActivity(c *gin.Context) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	list, err := h.app.Activity.Recent(c.Request.Context(), query.GetRecentActivityQuery{Limit: limit})
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	RespondOK(c, list)
}

// ─────────────────────────────────────────────────────────────────────────────
// Achievements
// ─────────────────────────────────────────────────────────────────────────────

// GetCatalog returns every achievement.
func (h *GamificationHandler) GetCatalog(c *gin.Context) {
	list, err := h.app.Achievements.Catalog(c.Request.Context())
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	RespondOK(c, list)
}

// GetMyAchievements returns the caller's achievements, newest first.
func (h *GamificationHandler) GetMyAchievements(c *gin.Context) {
	id, ok := h.caller(c)
	if !ok {
		return
	}
	list, err := h.app.Achievements.UserAchievements(c.Request.Context(), id.UserID)
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	RespondOK(c, list)
}

// ClaimUnnotified returns new achievements and marks them notified.
func (h *GamificationHandler) ClaimUnnotified(c *gin.Context) {
	id, ok := h.caller(c)
	if !ok {
		return
	}
	list, err := h.app.ClaimNotifications.Handle(c.Request.Context(), command.ClaimNotificationsCommand{UserID: id.UserID})
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	RespondOK(c, query.ToEarnedDTOs(list))
}

// CheckAchievements grants what the caller now qualifies for.
func (h *GamificationHandler) CheckAchievements(c *gin.Context) {
	id, ok := h.caller(c)
	if !ok {
		return
	}
	granted, err := h.app.CheckAchievements.Handle(c.Request.Context(), command.CheckAchievementsCommand{UserID: id.UserID})
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	RespondOK(c, granted)
}

// CreateAchievement adds a catalog entry. Admin only.
func (h *GamificationHandler) CreateAchievement(c *gin.Context) {
	var cmd command.CreateAchievementCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		HandleError(c, h.log, shared.WrapError("http", "CreateAchievement", shared.ErrInvalidInput, "malformed body", err))
		return
	}
	a, err := h.app.CreateAchievement.Handle(c.Request.Context(), cmd)
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	RespondCreated(c, query.ToAchievementDTO(a))
}

// ─────────────────────────────────────────────────────────────────────────────
// Events
// ─────────────────────────────────────────────────────────────────────────────

// RecordEventRequest is the body of POST /events. Points always come from the
// point table; a body that names them is rejected.
type RecordEventRequest struct {
	Type              string          `json:"type" binding:"required"`
	EntityID          string          `json:"entity_id"`
	TimeSpentSeconds  int64           `json:"time_spent_seconds"`
	CheckAchievements *bool           `json:"check_achievements"`
	Points            json.RawMessage `json:"points"`
}

// RecordEvent records a learning event for the caller.
func (h *GamificationHandler) RecordEvent(c *gin.Context) {
	id, ok := h.caller(c)
	if !ok {
		return
	}
	var req RecordEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleError(c, h.log, shared.WrapError("http", "RecordEvent", shared.ErrInvalidInput, "malformed body", err))
		return
	}
	if req.Points != nil {
		HandleError(c, h.log, shared.NewDomainError("http", "RecordEvent", shared.ErrInvalidInput, "points are assigned by the service"))
		return
	}
	typ, err := activity.ParseType(req.Type)
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	if !typ.IsSelfReported() {
		HandleError(c, h.log, shared.NewDomainError("http", "RecordEvent", shared.ErrForbidden,
			"event type "+typ.String()+" is recorded by the service"))
		return
	}

	check := true
	if req.CheckAchievements != nil {
		check = *req.CheckAchievements
	}
	res, err := h.app.RecordEvent.Handle(c.Request.Context(), command.RecordEventCommand{
		UserID:            id.UserID,
		Type:              typ,
		EntityID:          req.EntityID,
		TimeSpentSeconds:  req.TimeSpentSeconds,
		CheckAchievements: check,
	})
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	RespondCreated(c, res)
}

// CompleteCourseRequest is the body of POST /courses/:courseId/complete.
type CompleteCourseRequest struct {
	Level       string `json:"level"`
	LessonCount int    `json:"lesson_count"`
}

// CompleteCourse awards course-completion points to the caller.
func (h *GamificationHandler) CompleteCourse(c *gin.Context) {
	id, ok := h.caller(c)
	if !ok {
		return
	}
	var req CompleteCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleError(c, h.log, shared.WrapError("http", "CompleteCourse", shared.ErrInvalidInput, "malformed body", err))
		return
	}
	res, err := h.app.CompleteCourse.Handle(c.Request.Context(), command.CompleteCourseCommand{
		UserID:      id.UserID,
		CourseID:    c.Param("courseId"),
		Level:       activity.CourseLevel(req.Level),
		LessonCount: req.LessonCount,
	})
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	RespondOK(c, res)
}

// RunMaintenance runs one maintenance job synchronously. Admin only.
func (h *GamificationHandler) RunMaintenance(c *gin.Context) {
	job, err := command.ParseJob(c.Param("job"))
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	res, err := h.app.Maintenance.Run(c.Request.Context(), job)
	if err != nil {
		HandleError(c, h.log, err)
		return
	}
	h.log.Info("maintenance triggered over http", logger.Operation(string(job)))
	RespondOK(c, res)
}
