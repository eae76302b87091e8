// Package logging provides structured logging using Go's slog package.
//
// Logs are written to stderr so that anything a command prints on stdout
// (generated code, reports) stays clean.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

const (
	// RunIDKey is the context key for the id of the current expansion run.
	RunIDKey ContextKey = "run_id"
)

var (
	// defaultLogger is the global logger instance.
	defaultLogger *slog.Logger

	// output is where InitLogger sends log records.
	output io.Writer = os.Stderr
)

func init() {
	// Initialize with a default logger (text format, Warn level)
	InitLogger(LevelWarn, FormatText)
}

// Level represents a log level.
type Level int

const (
	// LevelDebug is for debug messages.
	LevelDebug Level = iota
	// LevelInfo is for informational messages.
	LevelInfo
	// LevelWarn is for warning messages.
	LevelWarn
	// LevelError is for error messages.
	LevelError
)

// Format represents a log output format.
type Format int

const (
	// FormatJSON outputs logs in JSON format.
	FormatJSON Format = iota
	// FormatText outputs logs in human-readable text format.
	FormatText
)

// ParseLevel maps "debug", "info", "warn" or "error" to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// ParseFormat maps "json" or "text" to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "text", "":
		return FormatText, nil
	}
	return FormatText, fmt.Errorf("unknown log format %q", s)
}

// InitLogger initializes the global logger with the specified level and format.
func InitLogger(level Level, format Format) {
	var slogLevel slog.Level
	switch level {
	case LevelDebug:
		slogLevel = slog.LevelDebug
	case LevelInfo:
		slogLevel = slog.LevelInfo
	case LevelWarn:
		slogLevel = slog.LevelWarn
	case LevelError:
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Customize timestamp format
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

// WithRunID adds a run ID to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// GetRunID retrieves the run ID from the context.
func GetRunID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if runID, ok := ctx.Value(RunIDKey).(string); ok {
		return runID
	}
	return ""
}

// LoggerFromContext returns a logger with context values attached.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	logger := defaultLogger
	if runID := GetRunID(ctx); runID != "" {
		logger = logger.With("run_id", runID)
	}
	return logger
}

// Helper functions for common logging patterns

// DebugContext logs a debug message with context.
func DebugContext(ctx context.Context, msg string, args ...any) {
	LoggerFromContext(ctx).Debug(msg, args...)
}

// InfoContext logs an info message with context.
func InfoContext(ctx context.Context, msg string, args ...any) {
	LoggerFromContext(ctx).Info(msg, args...)
}

// WarnContext logs a warning message with context.
func WarnContext(ctx context.Context, msg string, args ...any) {
	LoggerFromContext(ctx).Warn(msg, args...)
}

// ErrorContext logs an error message with context.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	LoggerFromContext(ctx).Error(msg, args...)
}

// Expansion logs the outcome of one python_mixin! invocation.
func Expansion(ctx context.Context, file string, line int, kind, outcome string, args ...any) {
	allArgs := []any{
		"file", file,
		"line", line,
		"kind", kind,
		"outcome", outcome,
	}
	allArgs = append(allArgs, args...)
	LoggerFromContext(ctx).Info("expansion", allArgs...)
}

// InterpreterRun logs a finished interpreter process.
func InterpreterRun(ctx context.Context, command, status string, duration time.Duration, args ...any) {
	allArgs := []any{
		"command", command,
		"status", status,
		"duration_ms", duration.Milliseconds(),
	}
	allArgs = append(allArgs, args...)
	LoggerFromContext(ctx).Debug("interpreter_run", allArgs...)
}

// InterpreterError logs an interpreter that could not be started.
func InterpreterError(ctx context.Context, command string, err error, args ...any) {
	allArgs := []any{
		"command", command,
		"error", err.Error(),
	}
	allArgs = append(allArgs, args...)
	LoggerFromContext(ctx).Error("interpreter_error", allArgs...)
}

// FileProcessed logs the result of expanding one template.
func FileProcessed(ctx context.Context, template, output string, invocations, errors int, args ...any) {
	allArgs := []any{
		"template", template,
		"output", output,
		"invocations", invocations,
		"errors", errors,
	}
	allArgs = append(allArgs, args...)
	logger := LoggerFromContext(ctx)
	if errors > 0 {
		logger.Warn("file_processed", allArgs...)
		return
	}
	logger.Info("file_processed", allArgs...)
}

// ScratchEvent logs scratch directory lifecycle events.
func ScratchEvent(ctx context.Context, event, dir string, args ...any) {
	allArgs := []any{
		"event", event,
		"dir", dir,
	}
	allArgs = append(allArgs, args...)
	LoggerFromContext(ctx).Debug("scratch", allArgs...)
}
