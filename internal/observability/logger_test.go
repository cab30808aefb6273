package observability

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"answerd/internal/config"
)

type syncBuffer struct {
	bytes.Buffer
}

func (b *syncBuffer) Sync() error { return nil }

func TestGetLoggerBeforeInitialize(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger)
	// Must not panic even though nothing was initialized.
	logger.Info("uninitialized")
}

func TestInitializeConsoleJSON(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	var buf syncBuffer
	Initialize(config.LoggingConfig{Level: "debug", Format: "json"}, zapcore.Lock(&buf))

	GetLogger().Info("hello from test")
	assert.Contains(t, buf.String(), `"hello from test"`)
	assert.Contains(t, buf.String(), `"INFO"`)
}

func TestInitializeOnlyOnce(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	var first, second syncBuffer
	Initialize(config.LoggingConfig{Level: "info", Format: "json"}, zapcore.Lock(&first))
	Initialize(config.LoggingConfig{Level: "info", Format: "json"}, zapcore.Lock(&second))

	GetLogger().Info("routed to first")
	assert.Contains(t, first.String(), "routed to first")
	assert.Empty(t, second.String())
}

func TestInitializeFileSink(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logFile := filepath.Join(t.TempDir(), "answerd.log")
	var buf syncBuffer
	Initialize(config.LoggingConfig{
		Level:     "info",
		Format:    "console",
		File:      logFile,
		MaxSizeMB: 1,
	}, zapcore.Lock(&buf))

	GetLogger().Warn("file sink check")
	Sync()

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "file sink check")
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	var buf syncBuffer
	Initialize(config.LoggingConfig{Level: "nonsense", Format: "json"}, zapcore.Lock(&buf))

	GetLogger().Debug("should be suppressed")
	GetLogger().Info("should appear")
	assert.NotContains(t, buf.String(), "should be suppressed")
	assert.Contains(t, buf.String(), "should appear")
}
