// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/brit/playwrightium/internal/config"
)

// syncBuffer is a goroutine-safe write target for the console core.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Sync() error { return nil }

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var _ zapcore.WriteSyncer = (*syncBuffer)(nil)

func TestInitialize(t *testing.T) {
	t.Cleanup(ResetForTest)

	t.Run("ConsoleWithColors", func(t *testing.T) {
		ResetForTest()
		out := &syncBuffer{}
		Initialize(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "TestService",
			Colors:      config.ColorConfig{Info: "green"},
		}, out)
		GetLogger().Info("This is a test message.")
		Sync()

		assert.Contains(t, out.String(), "INFO")
		assert.Contains(t, out.String(), "TestService.")
		assert.Contains(t, out.String(), "This is a test message.")
		assert.Contains(t, out.String(), colorGreen)
		assert.Contains(t, out.String(), colorReset)
	})

	t.Run("JSON", func(t *testing.T) {
		ResetForTest()
		out := &syncBuffer{}
		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "JSONTest"}, out)
		GetLogger().Warn("This is a JSON message.", zap.String("key", "value"))
		Sync()

		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(out.String()), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "JSONTest", entry["logger"])
		assert.Equal(t, "This is a JSON message.", entry["msg"])
		assert.Equal(t, "value", entry["key"])
	})

	t.Run("LevelFilters", func(t *testing.T) {
		ResetForTest()
		out := &syncBuffer{}
		Initialize(config.LoggerConfig{Level: "warn", Format: "json"}, out)
		GetLogger().Info("dropped")
		Sync()
		assert.Empty(t, out.String())
	})

	t.Run("RotatedFile", func(t *testing.T) {
		ResetForTest()
		path := filepath.Join(t.TempDir(), "playwrightium.log")
		Initialize(config.LoggerConfig{Level: "debug", Format: "json", LogFile: path, MaxSize: 1}, &syncBuffer{})
		GetLogger().Error("This should go to the file.")
		Sync()

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(content), "This should go to the file.")
	})

	t.Run("OnlyOnce", func(t *testing.T) {
		ResetForTest()
		out := &syncBuffer{}
		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "First"}, out)
		first := GetLogger()
		Initialize(config.LoggerConfig{Level: "debug", Format: "json", ServiceName: "Second"}, out)
		assert.Same(t, first, GetLogger())

		GetLogger().Info("test")
		Sync()
		assert.Contains(t, out.String(), "First")
		assert.NotContains(t, out.String(), "Second")
	})
}

func TestGetLoggerFallback(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)
	logger := GetLogger()
	require.NotNil(t, logger)
	assert.Nil(t, globalLogger.Load())
}
