package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_DRIVER", DriverMemory)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "gamification", cfg.App.Name)
	assert.Equal(t, time.UTC, cfg.App.Location)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, []string{"*"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, 5*time.Minute, cfg.Leaderboard.CacheTTL)
	assert.Equal(t, "0 0 * * *", cfg.Scheduler.StreakCheck)
	assert.Equal(t, "30 * * * *", cfg.Scheduler.RankUpdate)
	assert.False(t, cfg.Redis.Enabled)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_DRIVER", "GORM")
	t.Setenv("DATABASE_URL", "postgres://localhost/db")
	t.Setenv("APP_TIMEZONE", "Asia/Almaty")
	t.Setenv("HTTP_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("LEADERBOARD_CACHE_TTL", "45s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DriverGorm, cfg.Database.Driver)
	assert.Equal(t, "Asia/Almaty", cfg.App.Location.String())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, 45*time.Second, cfg.Leaderboard.CacheTTL)
}

func TestLoad_AppEnvFile(t *testing.T) {
	dir := t.TempDir()
	content := "JWT_SECRET=from-file\nDB_DRIVER=sqlite\nHTTP_PORT=9090\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.env"), []byte(content), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, 9090, cfg.HTTP.Port)
}

func TestLoad_MissingFileIsFine(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_DRIVER", DriverMemory)

	_, err := Load(t.TempDir())
	require.NoError(t, err)
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	t.Setenv("APP_TIMEZONE", "Mars/Olympus")
	t.Setenv("DB_DRIVER", DriverPgx)
	t.Setenv("HTTP_PORT", "0")

	_, err := Load("")
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "APP_TIMEZONE")
	assert.Contains(t, msg, "DATABASE_URL")
	assert.Contains(t, msg, "HTTP_PORT")
	assert.Contains(t, msg, "JWT_SECRET")
}

func TestValidate_MemoryDriverRejectedInProduction(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_DRIVER", DriverMemory)
	t.Setenv("APP_ENV", "production")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memory")
}
