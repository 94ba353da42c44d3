package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursehub/gamification/internal/domain/activity"
	"github.com/coursehub/gamification/internal/domain/shared"
	"github.com/coursehub/gamification/internal/domain/stats"
)

func TestConfigDSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Password = "secret"
	assert.Equal(t,
		"host=localhost port=5432 dbname=gamification user=postgres password=secret sslmode=disable connect_timeout=10",
		cfg.DSN())

	cfg.URL = "postgres://u:p@db:5432/app"
	assert.Equal(t, "postgres://u:p@db:5432/app", cfg.DSN())
}

func TestPoolConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConns = 7
	cfg.MaxConnIdleTime = 2 * time.Minute

	pc, err := cfg.PoolConfig()
	require.NoError(t, err)
	assert.Equal(t, int32(7), pc.MaxConns)
	assert.Equal(t, 2*time.Minute, pc.MaxConnIdleTime)
}

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError("stats", "Get", nil, stats.ErrStatsNotFound))

	err := mapError("stats", "Get", pgx.ErrNoRows, stats.ErrStatsNotFound)
	assert.Same(t, stats.ErrStatsNotFound, err)
	assert.True(t, shared.IsNotFound(err))

	err = mapError("achievement", "Create", &pgconn.PgError{Code: "23505"}, nil)
	assert.True(t, shared.IsAlreadyExists(err))

	err = mapError("activity", "Append", fmt.Errorf("dial: %w", errors.New("refused")), nil)
	assert.ErrorIs(t, err, shared.ErrStorage)

	assert.ErrorIs(t, mapError("activity", "Append", context.Canceled, nil), context.Canceled)
}

func TestMigrationsOrdered(t *testing.T) {
	migrations := GetMigrations()
	require.NotEmpty(t, migrations)
	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.UpSQL, m.Name)
		assert.NotEmpty(t, m.DownSQL, m.Name)
	}
}

func TestMigrationsAcceptEveryActivityType(t *testing.T) {
	for _, typ := range activity.AllTypes {
		assert.Contains(t, migration001Up, "'"+typ.String()+"'")
	}
}

func TestTypeStrings(t *testing.T) {
	got := typeStrings([]activity.Type{activity.TypeLogin, activity.TypeMaintainStreak})
	assert.Equal(t, []string{"login", "maintain_streak"}, got)
}
