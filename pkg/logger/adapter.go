package logger

import (
	"go.uber.org/zap"
)

// LoggerAdapter hands out per-concern loggers from either a categorized
// multi-logger or one plain logger
type LoggerAdapter struct {
	general     *zap.Logger
	multiLogger *MultiLogger
}

// NewLoggerAdapter creates an adapter that writes categorized events to
// multiLogger and everything else to general
func NewLoggerAdapter(general *zap.Logger, multiLogger *MultiLogger) *LoggerAdapter {
	if general == nil {
		general = zap.NewNop()
	}
	return &LoggerAdapter{
		general:     general,
		multiLogger: multiLogger,
	}
}

// NewSingleLoggerAdapter creates an adapter for a single logger (tests, CLI)
func NewSingleLoggerAdapter(logger *zap.Logger) *LoggerAdapter {
	return NewLoggerAdapter(logger, nil)
}

// General returns the general logger
func (la *LoggerAdapter) General() *zap.Logger {
	return la.general
}

// Queue returns the queue logger
func (la *LoggerAdapter) Queue() *zap.Logger {
	if la.multiLogger != nil {
		return la.multiLogger.Queue()
	}
	return la.general.With(zap.String("category", string(CategoryQueue)))
}

// Health returns the health monitor logger
func (la *LoggerAdapter) Health() *zap.Logger {
	if la.multiLogger != nil {
		return la.multiLogger.Health()
	}
	return la.general.With(zap.String("category", string(CategoryHealth)))
}

// LogError logs an error to the general log and the error category
func (la *LoggerAdapter) LogError(msg string, fields ...zap.Field) {
	la.general.Error(msg, fields...)
	if la.multiLogger != nil {
		la.multiLogger.LogAppError(msg, fields...)
	}
}

// Sync flushes all loggers
func (la *LoggerAdapter) Sync() error {
	_ = la.general.Sync()
	return la.multiLogger.Sync()
}
