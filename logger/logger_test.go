package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/esimov/pixel-particles/config"
)

func TestLBeforeInitialize(t *testing.T) {
	ResetForTest()
	assert.NotNil(t, L())
}

func TestInitializeConsoleJSON(t *testing.T) {
	ResetForTest()
	defer ResetForTest()

	var buf bytes.Buffer
	Initialize(config.LoggerConfig{Level: "debug", Format: "json", ServiceName: "test"}, zapcore.AddSync(&buf))
	L().Debug("frame", zap.Int("particles", 16))
	Sync()

	out := buf.String()
	assert.Contains(t, out, `"msg":"frame"`)
	assert.Contains(t, out, `"particles":16`)
	assert.Contains(t, out, `"logger":"test"`)
}

func TestInitializeLevelFilter(t *testing.T) {
	ResetForTest()
	defer ResetForTest()

	var buf bytes.Buffer
	Initialize(config.LoggerConfig{Level: "warn", Format: "json"}, zapcore.AddSync(&buf))
	L().Info("hidden")
	L().Warn("shown")
	Sync()

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestInitializeOnce(t *testing.T) {
	ResetForTest()
	defer ResetForTest()

	var first, second bytes.Buffer
	Initialize(config.LoggerConfig{Level: "info", Format: "json"}, zapcore.AddSync(&first))
	Initialize(config.LoggerConfig{Level: "info", Format: "json"}, zapcore.AddSync(&second))
	L().Info("hello")
	Sync()

	assert.Contains(t, first.String(), "hello")
	assert.Empty(t, second.String())
}

func TestInitializeFile(t *testing.T) {
	ResetForTest()
	defer ResetForTest()

	path := filepath.Join(t.TempDir(), "debug.log")
	InitializeStdout(config.LoggerConfig{Level: "info", File: path, MaxSize: 1}, true)
	L().Info("to file")
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}
