// Package log provides the structured logging interface used by the LightGBM
// binding layer, its in-process engine, the data loaders and the CLI.
//
// The Logger interface is deliberately slog-shaped so that a *slog.Logger can
// be adapted with NewSlogLogger, while the default backend is zerolog
// (see zerolog.go). Callers attach binding-specific attributes from
// attributes.go:
//
//	logger := log.GetLoggerWithName("lightgbm.booster").With(
//	    log.EstimatorIDKey, b.ID(),
//	)
//	logger.Info("Training finished",
//	    log.OperationKey, log.OperationTrain,
//	    log.IterationKey, 32,
//	)
package log

import (
	"context"
)

// Logger defines a structured logging interface compatible with Go's log/slog.
//
// fields are alternating key/value pairs. Error accepts an error value as the
// first field; backends log it under ErrAttrKey together with its stack trace
// when one is available.
type Logger interface {
	// Debug logs a debug-level message with optional structured fields.
	Debug(msg string, fields ...any)

	// Info logs an info-level message with optional structured fields.
	Info(msg string, fields ...any)

	// Warn logs a warning-level message with optional structured fields.
	Warn(msg string, fields ...any)

	// Error logs an error-level message with optional structured fields.
	//
	// Example:
	//   logger.Error("Model load failed",
	//       err,
	//       log.OperationKey, log.OperationLoad,
	//   )
	Error(msg string, fields ...any)

	// With returns a new Logger with the given fields pre-populated.
	With(fields ...any) Logger

	// Enabled reports whether the logger emits log records at the given level.
	// Use it to skip building expensive fields, e.g. per-iteration debug logs.
	Enabled(ctx context.Context, level Level) bool
}

// Level represents a logging level, compatible with slog.Level.
type Level int

// Standard logging levels, values are compatible with slog.Level.
const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LoggerProvider creates and configures loggers. The package-level functions
// GetLogger, GetLoggerWithName and SetLevel delegate to the installed provider.
type LoggerProvider interface {
	// GetLogger returns the default logger instance.
	GetLogger() Logger

	// GetLoggerWithName returns a logger tagged with a component name.
	GetLoggerWithName(name string) Logger

	// SetLevel sets the minimum log level for all loggers created by this provider.
	SetLevel(level Level)
}
