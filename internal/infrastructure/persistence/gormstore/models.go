package gormstore

import (
	"time"

	"gorm.io/datatypes"

	"github.com/coursehub/gamification/internal/domain/achievement"
	"github.com/coursehub/gamification/internal/domain/activity"
	"github.com/coursehub/gamification/internal/domain/stats"
	"github.com/coursehub/gamification/internal/domain/streak"
)

// ══════════════════════════════════════════════════════════════════════════════
// TABLE MODELS
// Column names match the pgx schema so both stores can share a database.
// ══════════════════════════════════════════════════════════════════════════════

type activityRecord struct {
	ID           string    `gorm:"primaryKey;type:varchar(64)"`
	UserID       string    `gorm:"not null;index:idx_activity_log_user_created,priority:1"`
	ActivityType string    `gorm:"not null;type:varchar(32)"`
	EntityID     *string   `gorm:"index:idx_activity_log_entity_type,priority:1"`
	PointsEarned int       `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null;index:idx_activity_log_user_created,priority:2;index"`
}

func (activityRecord) TableName() string { return "activity_log" }

func (r *activityRecord) toDomain() *activity.Entry {
	e := &activity.Entry{
		ID:        r.ID,
		UserID:    r.UserID,
		Type:      activity.Type(r.ActivityType),
		Points:    r.PointsEarned,
		CreatedAt: r.CreatedAt,
	}
	if r.EntityID != nil {
		e.EntityID = *r.EntityID
	}
	return e
}

type statsRecord struct {
	ID               string `gorm:"primaryKey;type:varchar(64)"`
	UserID           string `gorm:"not null;uniqueIndex"`
	TotalPoints      int64  `gorm:"not null"`
	WeeklyPoints     int64  `gorm:"not null"`
	MonthlyPoints    int64  `gorm:"not null"`
	Rank             *int
	LessonsCompleted int64     `gorm:"not null"`
	CoursesCompleted int64     `gorm:"not null"`
	TotalTimeSpent   int64     `gorm:"not null"`
	LastUpdated      time.Time `gorm:"not null"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (statsRecord) TableName() string { return "user_stats" }

func (r *statsRecord) toDomain() *stats.UserStats {
	return &stats.UserStats{
		ID:               r.ID,
		UserID:           r.UserID,
		TotalPoints:      r.TotalPoints,
		WeeklyPoints:     r.WeeklyPoints,
		MonthlyPoints:    r.MonthlyPoints,
		Rank:             r.Rank,
		LessonsCompleted: r.LessonsCompleted,
		CoursesCompleted: r.CoursesCompleted,
		TotalTimeSpent:   r.TotalTimeSpent,
		LastUpdated:      r.LastUpdated,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

type streakRecord struct {
	ID               string         `gorm:"primaryKey;type:varchar(64)"`
	UserID           string         `gorm:"not null;uniqueIndex"`
	CurrentStreak    int            `gorm:"not null"`
	LongestStreak    int            `gorm:"not null"`
	LastActivityDate datatypes.Date `gorm:"not null;index"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (streakRecord) TableName() string { return "user_streaks" }

func (r *streakRecord) toDomain() *streak.Streak {
	last := time.Time(r.LastActivityDate)
	return &streak.Streak{
		ID:               r.ID,
		UserID:           r.UserID,
		CurrentStreak:    r.CurrentStreak,
		LongestStreak:    r.LongestStreak,
		LastActivityDate: time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, time.UTC),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

type achievementRecord struct {
	ID              string  `gorm:"primaryKey;type:varchar(64)"`
	Name            string  `gorm:"not null;type:varchar(100)"`
	Description     string  `gorm:"not null"`
	AchievementType string  `gorm:"not null;type:varchar(32)"`
	Threshold       int     `gorm:"not null"`
	PointsAwarded   int     `gorm:"not null"`
	IconURL         *string `gorm:"type:varchar(255)"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (achievementRecord) TableName() string { return "achievements" }

func (r *achievementRecord) toDomain() *achievement.Achievement {
	a := &achievement.Achievement{
		ID:            r.ID,
		Name:          r.Name,
		Description:   r.Description,
		Type:          achievement.Type(r.AchievementType),
		Threshold:     r.Threshold,
		PointsAwarded: r.PointsAwarded,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.IconURL != nil {
		a.IconURL = *r.IconURL
	}
	return a
}

type userAchievementRecord struct {
	ID            string             `gorm:"primaryKey;type:varchar(64)"`
	UserID        string             `gorm:"not null;uniqueIndex:unique_user_achievement,priority:1;index"`
	AchievementID string             `gorm:"not null;uniqueIndex:unique_user_achievement,priority:2;index"`
	Achievement   *achievementRecord `gorm:"foreignKey:AchievementID;constraint:OnDelete:CASCADE"`
	EarnedAt      time.Time          `gorm:"not null"`
	Notified      bool               `gorm:"not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (userAchievementRecord) TableName() string { return "user_achievements" }

func (r *userAchievementRecord) toDomain() *achievement.UserAchievement {
	return &achievement.UserAchievement{
		ID:            r.ID,
		UserID:        r.UserID,
		AchievementID: r.AchievementID,
		EarnedAt:      r.EarnedAt,
		Notified:      r.Notified,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func (r *userAchievementRecord) toEarned() *achievement.Earned {
	e := &achievement.Earned{UserAchievement: *r.toDomain()}
	if r.Achievement != nil {
		e.Achievement = *r.Achievement.toDomain()
	}
	return e
}

// models lists every table for AutoMigrate, parents first.
func models() []any {
	return []any{
		&activityRecord{},
		&statsRecord{},
		&streakRecord{},
		&achievementRecord{},
		&userAchievementRecord{},
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
