// Package logging provides categorized structured logging for secq.
// Every category is a named child of one process-wide zap logger; until
// Initialize is called all categories discard their output.
package logging

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot       Category = "boot"       // Startup, configuration
	CategoryUpload     Category = "upload"     // Evidence uploads
	CategoryCache      Category = "cache"      // Upload cache persistence
	CategoryActivation Category = "activation" // Remote activation polling
	CategoryCrawl      Category = "crawl"      // Website crawling and extraction
	CategoryEvaluate   Category = "evaluate"   // Generation and verdicts
	CategorySheets     Category = "sheets"     // Tabular store reads/writes
	CategoryPipeline   Category = "pipeline"   // Run orchestration
)

// Config selects level, encoding and an optional file sink.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	File   string
}

// Logger is a category-scoped sugared zap logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	base    = zap.NewNop()
	loggers = make(map[Category]*Logger)
)

// Initialize builds the process logger from cfg and replaces any previous one.
func Initialize(cfg Config) error {
	var zc zap.Config
	if strings.EqualFold(cfg.Format, "json") {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.DisableStacktrace = true

	level, err := zapcore.ParseLevel(strings.ToLower(orDefault(cfg.Level, "info")))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	if cfg.File != "" {
		zc.OutputPaths = append(zc.OutputPaths, cfg.File)
	}

	l, err := zc.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	SetBase(l)
	return nil
}

// SetBase swaps the process logger. Tests use it with an observer core.
func SetBase(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	defer mu.Unlock()
	base = l
	loggers = make(map[Category]*Logger)
}

// Base returns the process logger.
func Base() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Sync flushes buffered entries. Errors from syncing a terminal are ignored.
func Sync() {
	_ = Base().Sync()
}

// Get returns (or creates) a logger for the given category.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := &Logger{
		category: category,
		sugar:    base.Named(string(category)).Sugar(),
	}
	loggers[category] = l
	return l
}

// With returns a child logger carrying the given key/value pairs.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

// BootDebug logs debug to the boot category
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }

// BootWarn logs a warning to the boot category
func BootWarn(format string, args ...interface{}) { Get(CategoryBoot).Warn(format, args...) }

// Upload logs to the upload category
func Upload(format string, args ...interface{}) { Get(CategoryUpload).Info(format, args...) }

// UploadDebug logs debug to the upload category
func UploadDebug(format string, args ...interface{}) { Get(CategoryUpload).Debug(format, args...) }

// UploadWarn logs a warning to the upload category
func UploadWarn(format string, args ...interface{}) { Get(CategoryUpload).Warn(format, args...) }

// UploadError logs an error to the upload category
func UploadError(format string, args ...interface{}) { Get(CategoryUpload).Error(format, args...) }

// Cache logs to the cache category
func Cache(format string, args ...interface{}) { Get(CategoryCache).Info(format, args...) }

// CacheDebug logs debug to the cache category
func CacheDebug(format string, args ...interface{}) { Get(CategoryCache).Debug(format, args...) }

// CacheWarn logs a warning to the cache category
func CacheWarn(format string, args ...interface{}) { Get(CategoryCache).Warn(format, args...) }

// Activation logs to the activation category
func Activation(format string, args ...interface{}) { Get(CategoryActivation).Info(format, args...) }

// ActivationDebug logs debug to the activation category
func ActivationDebug(format string, args ...interface{}) {
	Get(CategoryActivation).Debug(format, args...)
}

// ActivationWarn logs a warning to the activation category
func ActivationWarn(format string, args ...interface{}) {
	Get(CategoryActivation).Warn(format, args...)
}

// Crawl logs to the crawl category
func Crawl(format string, args ...interface{}) { Get(CategoryCrawl).Info(format, args...) }

// CrawlDebug logs debug to the crawl category
func CrawlDebug(format string, args ...interface{}) { Get(CategoryCrawl).Debug(format, args...) }

// CrawlWarn logs a warning to the crawl category
func CrawlWarn(format string, args ...interface{}) { Get(CategoryCrawl).Warn(format, args...) }

// Evaluate logs to the evaluate category
func Evaluate(format string, args ...interface{}) { Get(CategoryEvaluate).Info(format, args...) }

// EvaluateDebug logs debug to the evaluate category
func EvaluateDebug(format string, args ...interface{}) { Get(CategoryEvaluate).Debug(format, args...) }

// EvaluateWarn logs a warning to the evaluate category
func EvaluateWarn(format string, args ...interface{}) { Get(CategoryEvaluate).Warn(format, args...) }

// EvaluateError logs an error to the evaluate category
func EvaluateError(format string, args ...interface{}) { Get(CategoryEvaluate).Error(format, args...) }

// Sheets logs to the sheets category
func Sheets(format string, args ...interface{}) { Get(CategorySheets).Info(format, args...) }

// SheetsDebug logs debug to the sheets category
func SheetsDebug(format string, args ...interface{}) { Get(CategorySheets).Debug(format, args...) }

// SheetsWarn logs a warning to the sheets category
func SheetsWarn(format string, args ...interface{}) { Get(CategorySheets).Warn(format, args...) }

// Pipeline logs to the pipeline category
func Pipeline(format string, args ...interface{}) { Get(CategoryPipeline).Info(format, args...) }

// PipelineWarn logs a warning to the pipeline category
func PipelineWarn(format string, args ...interface{}) { Get(CategoryPipeline).Warn(format, args...) }

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithInfo ends the timer and logs at info level
func (t *Timer) StopWithInfo() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Info("%s completed in %v", t.op, elapsed)
	return elapsed
}
