package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMultiLogger_WritesCategoriesReadableByLogReader(t *testing.T) {
	dir := t.TempDir()
	ml, err := NewMultiLogger(MultiLoggerConfig{Level: "info", LogsDir: dir})
	require.NoError(t, err)

	ml.LogQueueEvent("job_enqueued", zap.String("job_id", "j1"))
	ml.LogHealthEvent("job_stalled", zap.String("job_id", "j1"), zap.Int("stall_count", 2))
	ml.LogAppError("transfer panicked", zap.String("job_id", "j2"))
	require.NoError(t, ml.Close())

	reader := NewLogReader(dir)

	queue, err := reader.ReadLogs(CategoryQueue, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, "job_enqueued", queue[0].Message)
	assert.Equal(t, "info", queue[0].Level)
	assert.Equal(t, "queue", queue[0].Category)
	assert.Equal(t, "j1", queue[0].Fields["job_id"])
	assert.NotEmpty(t, queue[0].Timestamp)

	health, err := reader.SearchLogs(CategoryHealth, time.Now(), "J1", 10)
	require.NoError(t, err)
	require.Len(t, health, 1)
	assert.Equal(t, float64(2), health[0].Fields["stall_count"])

	errs, err := reader.ReadLogs(CategoryError, time.Now(), 0)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "error", errs[0].Level)
}

func TestLogReader_MissingFile(t *testing.T) {
	entries, err := NewLogReader(t.TempDir()).ReadLogs(CategoryQueue, time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNilMultiLoggerDiscards(t *testing.T) {
	var ml *MultiLogger
	assert.NotPanics(t, func() {
		ml.LogQueueEvent("ignored")
		ml.LogHealthEvent("ignored")
		ml.LogAppError("ignored")
		_ = ml.Sync()
	})
}

func TestValidCategory(t *testing.T) {
	assert.True(t, ValidCategory(CategoryHealth))
	assert.False(t, ValidCategory("download"))
}

func TestNew_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "trackfetch.log")

	log, err := New(Config{Level: "warn", Format: "json", OutputPath: path})
	require.NoError(t, err)
	log.Info("dropped")
	log.Warn("kept", zap.String("job_id", "j1"))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	entry := parseLine(lines[0], CategoryQueue)
	assert.Equal(t, "kept", entry.Message)
	assert.Equal(t, "warn", entry.Level)
	assert.Equal(t, "j1", entry.Fields["job_id"])
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	log, err := New(Config{Level: "chatty", OutputPath: "stderr"})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zap.InfoLevel))
	assert.False(t, log.Core().Enabled(zap.DebugLevel))

	assert.True(t, NewCLI(true).Core().Enabled(zap.DebugLevel))
	assert.False(t, NewCLI(false).Core().Enabled(zap.InfoLevel))
}

func TestLoggerAdapter_RoutesByCategory(t *testing.T) {
	dir := t.TempDir()
	ml, err := NewMultiLogger(MultiLoggerConfig{Level: "info", LogsDir: dir})
	require.NoError(t, err)
	defer ml.Close()

	adapter := NewLoggerAdapter(nil, ml)
	adapter.Queue().Info("dispatched", zap.String("job_id", "j1"))
	adapter.Health().Warn("stalled", zap.String("job_id", "j1"))
	adapter.LogError("boom")
	_ = adapter.Sync()

	reader := NewLogReader(dir)
	now := time.Now()

	queue, err := reader.ReadLogs(CategoryQueue, now, 0)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, "dispatched", queue[0].Message)

	health, err := reader.ReadLogs(CategoryHealth, now, 0)
	require.NoError(t, err)
	require.Len(t, health, 1)
	assert.Equal(t, "stalled", health[0].Message)

	errs, err := reader.ReadLogs(CategoryError, now, 0)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "boom", errs[0].Message)
}

func TestLoggerAdapter_SingleLogger(t *testing.T) {
	adapter := NewSingleLoggerAdapter(nil)
	assert.NotNil(t, adapter.General())
	assert.NotNil(t, adapter.Queue())
	assert.NotNil(t, adapter.Health())
	adapter.LogError("ignored")
}
