package bootstrap

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursehub/gamification/config"
	"github.com/coursehub/gamification/internal/application/command"
	"github.com/coursehub/gamification/internal/domain/activity"
	"github.com/coursehub/gamification/pkg/logger"
)

func testConfig(t *testing.T, driver string) *config.Config {
	t.Helper()
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_DRIVER", driver)
	t.Setenv("DB_SQLITE_PATH", filepath.Join(t.TempDir(), "test.db"))
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestBuild_MemoryStore(t *testing.T) {
	cfg := testConfig(t, config.DriverMemory)
	ctx := context.Background()

	c, err := Build(ctx, cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	assert.Nil(t, c.Cache)
	assert.Nil(t, c.Locker)
	assert.Nil(t, c.Limiter)

	res, err := c.App.RecordEvent.Handle(ctx, command.RecordEventCommand{
		UserID: "u1",
		Type:   activity.TypeLogin,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.CurrentStreak)

	status := c.HealthChecker().Check(ctx)
	assert.True(t, status.Healthy)
	assert.Contains(t, status.Checks, "database")
}

func TestBuild_SQLiteStoreMigrates(t *testing.T) {
	cfg := testConfig(t, config.DriverSQLite)
	ctx := context.Background()

	c, err := Build(ctx, cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Store.Ping(ctx))
	list, err := c.App.Achievements.Catalog(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestBuild_WithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, config.DriverMemory)
	cfg.Redis.Enabled = true
	cfg.Redis.Host = mr.Host()
	cfg.Redis.Port = mustPort(t, mr.Port())
	ctx := context.Background()

	c, err := Build(ctx, cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NotNil(t, c.Cache)
	require.NotNil(t, c.Locker)
	require.NotNil(t, c.Limiter)

	release, ok, err := c.Locker.TryLock(ctx, "job:test")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, release(ctx))

	status := c.HealthChecker().Check(ctx)
	assert.True(t, status.Checks["redis"].Optional)
	assert.True(t, status.Healthy)
}

func TestBuild_RedisDownKeepsRunning(t *testing.T) {
	cfg := testConfig(t, config.DriverMemory)
	cfg.Redis.Enabled = true
	cfg.Redis.Host = "127.0.0.1"
	cfg.Redis.Port = 1
	cfg.Redis.DialTimeout = 100 * time.Millisecond

	c, err := Build(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	assert.Nil(t, c.Cache)
}

func TestBuild_UnknownDriver(t *testing.T) {
	cfg := testConfig(t, config.DriverMemory)
	cfg.Database.Driver = "oracle"

	_, err := Build(context.Background(), cfg, logger.Nop())
	require.Error(t, err)
}

func mustPort(t *testing.T, s string) int {
	t.Helper()
	p, err := strconv.Atoi(s)
	require.NoError(t, err)
	return p
}
