package logger

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	Init("debug")
	require.NotNil(t, Log)
	assert.True(t, Log.Enabled(context.Background(), slog.LevelDebug))

	Init("warn")
	assert.False(t, Log.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, Log.Enabled(context.Background(), slog.LevelWarn))
}

func TestInitWithConfig_TextFormat(t *testing.T) {
	InitWithConfig(Config{Level: "info", Format: "text", Output: "stderr"})
	require.NotNil(t, Log)
	assert.True(t, Log.Enabled(context.Background(), slog.LevelInfo))
}

func TestInitWithConfig_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "test.log")
	InitWithConfig(Config{Level: "info", Format: "json", Output: "file", FilePath: path})
	require.NotNil(t, Log)

	Info("hello", "key", "value")
}

func TestHelpers(t *testing.T) {
	Init("info")

	assert.NotNil(t, WithRequestID("req-1"))
	assert.NotNil(t, WithScenario("scenario-1"))

	// уровневые helpers не должны паниковать
	Debug("debug message")
	Info("info message")
	Warn("warn message")
	Error("error message")
}
