package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogCategory represents different log categories
type LogCategory string

const (
	CategoryQueue  LogCategory = "queue"  // Job lifecycle events (JSON)
	CategoryHealth LogCategory = "health" // Stall watchdog classifications and interventions (JSON)
	CategoryError  LogCategory = "error"  // Application errors (JSON)
)

// Categories lists every category that has a log file
var Categories = []LogCategory{CategoryQueue, CategoryHealth, CategoryError}

// ValidCategory reports whether a category has a log file
func ValidCategory(category LogCategory) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}

// MultiLogger provides categorized logging with one JSON file per category
// and day. A nil *MultiLogger discards everything.
type MultiLogger struct {
	loggers     map[LogCategory]*zap.Logger
	files       map[LogCategory]*os.File
	levels      map[LogCategory]zapcore.Level
	config      MultiLoggerConfig
	mu          sync.RWMutex
	currentDate string
	now         func() time.Time
}

// MultiLoggerConfig contains configuration for multi-output logging
type MultiLoggerConfig struct {
	Level   string // debug, info, warn, error
	LogsDir string // Directory for log files
}

// NewMultiLogger creates a new multi-output logger
func NewMultiLogger(config MultiLoggerConfig) (*MultiLogger, error) {
	if config.LogsDir == "" {
		return nil, fmt.Errorf("logs_dir must be specified")
	}

	// Ensure logs directory exists
	if err := os.MkdirAll(config.LogsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	// Parse log level
	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	ml := &MultiLogger{
		loggers: make(map[LogCategory]*zap.Logger),
		files:   make(map[LogCategory]*os.File),
		levels: map[LogCategory]zapcore.Level{
			CategoryQueue:  level,
			CategoryHealth: level,
			CategoryError:  zapcore.ErrorLevel,
		},
		config: config,
		now:    time.Now,
	}

	if err := ml.openAll(ml.now().Format("20060102")); err != nil {
		return nil, err
	}

	return ml, nil
}

// openAll (re)opens every category file for the given date. Callers hold mu
// or own ml exclusively.
func (ml *MultiLogger) openAll(date string) error {
	for _, category := range Categories {
		logger, file, err := ml.createStructuredLogger(category, date, ml.levels[category])
		if err != nil {
			return fmt.Errorf("failed to create %s logger: %w", category, err)
		}
		if old, ok := ml.files[category]; ok {
			ml.loggers[category].Sync()
			old.Close()
		}
		ml.loggers[category] = logger
		ml.files[category] = file
	}
	ml.currentDate = date
	return nil
}

// createStructuredLogger creates a JSON-formatted logger for a category
func (ml *MultiLogger) createStructuredLogger(category LogCategory, date string, level zapcore.Level) (*zap.Logger, *os.File, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "msg"
	encoderConfig.LevelKey = "level"
	encoderConfig.CallerKey = "" // Don't include caller for cleaner logs

	encoder := zapcore.NewJSONEncoder(encoderConfig)

	logPath := filepath.Join(ml.config.LogsDir, fmt.Sprintf("%s-%s.log", category, date))
	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, err
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(file), level)
	return zap.New(core).With(zap.String("category", string(category))), file, nil
}

// rotate switches to new files when the day changes
func (ml *MultiLogger) rotate() {
	date := ml.now().Format("20060102")

	ml.mu.RLock()
	current := ml.currentDate
	ml.mu.RUnlock()
	if date == current {
		return
	}

	ml.mu.Lock()
	defer ml.mu.Unlock()
	if date == ml.currentDate {
		return
	}
	if err := ml.openAll(date); err != nil {
		// Keep writing to the previous day's files
		ml.currentDate = date
	}
}

// GetLogsDir returns the logs directory path
func (ml *MultiLogger) GetLogsDir() string {
	if ml == nil {
		return ""
	}
	return ml.config.LogsDir
}

// GetLogger returns the structured logger for a specific category
func (ml *MultiLogger) GetLogger(category LogCategory) *zap.Logger {
	if ml == nil {
		return zap.NewNop()
	}
	ml.rotate()

	ml.mu.RLock()
	defer ml.mu.RUnlock()

	if logger, ok := ml.loggers[category]; ok {
		return logger
	}

	// Return error logger as fallback
	return ml.loggers[CategoryError]
}

// Queue returns the queue logger (JSON format)
func (ml *MultiLogger) Queue() *zap.Logger {
	return ml.GetLogger(CategoryQueue)
}

// Health returns the health monitor logger (JSON format)
func (ml *MultiLogger) Health() *zap.Logger {
	return ml.GetLogger(CategoryHealth)
}

// Error returns the error logger (JSON format)
func (ml *MultiLogger) Error() *zap.Logger {
	return ml.GetLogger(CategoryError)
}

// LogAppError logs an application-level error (Go errors, panics)
func (ml *MultiLogger) LogAppError(msg string, fields ...zap.Field) {
	ml.Error().Error(msg, fields...)
}

// LogQueueEvent logs a job lifecycle event with structured data
func (ml *MultiLogger) LogQueueEvent(event string, fields ...zap.Field) {
	ml.Queue().Info(event, fields...)
}

// LogHealthEvent logs a health monitor classification or intervention
func (ml *MultiLogger) LogHealthEvent(event string, fields ...zap.Field) {
	ml.Health().Info(event, fields...)
}

// Sync flushes all loggers
func (ml *MultiLogger) Sync() error {
	if ml == nil {
		return nil
	}
	ml.mu.RLock()
	defer ml.mu.RUnlock()

	var lastErr error

	for _, logger := range ml.loggers {
		if err := logger.Sync(); err != nil {
			lastErr = err
		}
	}

	return lastErr
}

// Close flushes all loggers and closes their files
func (ml *MultiLogger) Close() error {
	if ml == nil {
		return nil
	}
	ml.mu.Lock()
	defer ml.mu.Unlock()

	var lastErr error

	for category, logger := range ml.loggers {
		if err := logger.Sync(); err != nil {
			lastErr = err
		}
		if err := ml.files[category].Close(); err != nil {
			lastErr = err
		}
	}

	return lastErr
}
