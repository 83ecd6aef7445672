package logging

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, level zapcore.Level) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(level)
	SetBase(zap.New(core))
	t.Cleanup(func() { SetBase(nil) })
	return logs
}

func TestCategoriesAreNamed(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)

	Upload("uploaded %s", "a.pdf")
	CrawlDebug("visiting %d", 3)
	Get(CategorySheets).Warn("slow write")

	entries := logs.All()
	require.Len(t, entries, 3)

	assert.Equal(t, "upload", entries[0].LoggerName)
	assert.Equal(t, "uploaded a.pdf", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)

	assert.Equal(t, "crawl", entries[1].LoggerName)
	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)

	assert.Equal(t, "sheets", entries[2].LoggerName)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
}

func TestLevelFiltering(t *testing.T) {
	logs := observe(t, zapcore.WarnLevel)

	Evaluate("dropped")
	EvaluateDebug("dropped")
	EvaluateWarn("kept")
	EvaluateError("kept")

	assert.Equal(t, 2, logs.Len())
}

func TestWithAddsFields(t *testing.T) {
	logs := observe(t, zapcore.InfoLevel)

	Get(CategoryEvaluate).With("row", 7).Info("verdict written")

	entries := logs.FilterField(zap.Int("row", 7)).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "verdict written", entries[0].Message)
}

func TestNoopBeforeInitialize(t *testing.T) {
	SetBase(nil)
	assert.NotPanics(t, func() {
		Boot("nothing listens")
		StartTimer(CategoryPipeline, "noop").Stop()
	})
}

func TestInitialize(t *testing.T) {
	t.Cleanup(func() { SetBase(nil) })

	file := filepath.Join(t.TempDir(), "secq.log")
	require.NoError(t, Initialize(Config{Level: "debug", Format: "json", File: file}))
	assert.True(t, Base().Core().Enabled(zapcore.DebugLevel))

	assert.Error(t, Initialize(Config{Level: "loud"}))
}
