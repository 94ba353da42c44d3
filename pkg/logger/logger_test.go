package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" WARNING "))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}

func TestLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo, Format: "json"})

	log.With(Component("stats")).Info("points added", UserID("u1"), Points(10))
	log.Debug("dropped")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "points added", entry["message"])
	assert.Equal(t, "stats", entry["component"])
	assert.Equal(t, "u1", entry["user_id"])
	assert.EqualValues(t, 10, entry["points"])
}

func TestLogger_ObserverFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewFromCore(core)

	log.Error("award failed", AchievementID("a1"), Err(errors.New("boom")))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "a1", fields["achievement_id"])
	assert.Equal(t, "boom", fields["error"])
}

func TestContextPropagation(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := NewFromCore(core).WithRequestID("req-1")

	ctx := WithContext(context.Background(), log)
	FromContext(ctx).Info("hello")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "req-1", logs.All()[0].ContextMap()[RequestIDKey])
	assert.NotNil(t, FromContext(context.Background()))
}
