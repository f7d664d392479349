package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/mediafirewall/persona-voice/internal/config"
)

func TestNewLevels(t *testing.T) {
	logger, err := New(config.LogConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = New(config.LogConfig{Level: "WARN", Format: "console"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))

	_, err = New(config.LogConfig{Level: "chatty"})
	assert.Error(t, err)
}

func TestNewFileWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.log")
	logger, err := NewFile(config.LogConfig{Level: "info"}, path)
	require.NoError(t, err)

	logger.Info("hello")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
