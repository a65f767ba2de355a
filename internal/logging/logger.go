package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/term"

	"meraki-toolkit/internal/target"
)

// LogLevel represents the logging level
type LogLevel string

const (
	LevelError LogLevel = "error"
	LevelInfo  LogLevel = "info"
	LevelDebug LogLevel = "debug"
	LevelTrace LogLevel = "trace"
)

// slogLevelTrace sits below debug; only verbosity 3 enables it
const slogLevelTrace = slog.Level(-8)

// LogFormat represents the output format for logs
type LogFormat string

const (
	FormatJSON LogFormat = "json"
	FormatText LogFormat = "text"
	FormatAuto LogFormat = "auto"
)

// Config holds logging configuration
type Config struct {
	Level  LogLevel  // Minimum log level to output
	Format LogFormat // Output format (json, text or auto)
	Output io.Writer // Output destination (defaults to stderr)
}

// Logger wraps slog.Logger. API keys and passphrases are never passed to it.
type Logger struct {
	logger *slog.Logger
	config Config
}

// NewLogger creates a new logger instance
func NewLogger(config Config) *Logger {
	if config.Output == nil {
		config.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level: convertLogLevel(config.Level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey && len(groups) == 0 {
				if level, ok := a.Value.Any().(slog.Level); ok && level == slogLevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}

	var handler slog.Handler
	switch resolveFormat(config.Format, config.Output) {
	case FormatJSON:
		handler = slog.NewJSONHandler(config.Output, opts)
	default:
		handler = slog.NewTextHandler(config.Output, opts)
	}

	return &Logger{
		logger: slog.New(handler),
		config: config,
	}
}

// Discard returns a logger that drops everything
func Discard() *Logger {
	return &Logger{
		logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1})),
		config: Config{Level: LevelError, Format: FormatText, Output: io.Discard},
	}
}

// resolveFormat picks text for an interactive terminal and JSON otherwise
// when the format is auto.
func resolveFormat(format LogFormat, output io.Writer) LogFormat {
	switch format {
	case FormatJSON, FormatText:
		return format
	case FormatAuto:
		if f, ok := output.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			return FormatText
		}
		return FormatJSON
	default:
		return FormatText
	}
}

func convertLogLevel(level LogLevel) slog.Level {
	switch level {
	case LevelError:
		return slog.LevelError
	case LevelInfo:
		return slog.LevelInfo
	case LevelDebug:
		return slog.LevelDebug
	case LevelTrace:
		return slogLevelTrace
	default:
		return slog.LevelInfo
	}
}

// LevelFromVerbosity maps the -v count to a level.
//
//	0: errors only
//	1: operation results
//	2: start and end of every remote call
//	3: HTTP request tracing
func LevelFromVerbosity(verbosity int) LogLevel {
	switch {
	case verbosity <= 0:
		return LevelError
	case verbosity == 1:
		return LevelInfo
	case verbosity == 2:
		return LevelDebug
	default:
		return LevelTrace
	}
}

// Level returns the configured minimum level
func (l *Logger) Level() LogLevel {
	return l.config.Level
}

// Info logs an informational message
func (l *Logger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

// Warn logs a warning
func (l *Logger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, args...)
}

// Trace logs below debug level
func (l *Logger) Trace(msg string, args ...any) {
	l.logger.Log(context.Background(), slogLevelTrace, msg, args...)
}

// InfoContext logs an informational message with context
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.logger.InfoContext(ctx, msg, args...)
}

// ErrorContext logs an error message with context
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.logger.ErrorContext(ctx, msg, args...)
}

// DebugContext logs a debug message with context
func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.logger.DebugContext(ctx, msg, args...)
}

// With returns a logger that adds args to every entry
func (l *Logger) With(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...), config: l.config}
}

// LogCallStart marks the start of a remote call
func (l *Logger) LogCallStart(operation string, args ...any) {
	l.Debug("START "+operation, args...)
}

// LogCallEnd marks the end of a remote call
func (l *Logger) LogCallEnd(operation string, duration time.Duration, args ...any) {
	l.Debug("END "+operation, append(args, "duration_ms", duration.Milliseconds())...)
}

// LogTargetResolved logs a network selected for update
func (l *Logger) LogTargetResolved(t target.Target) {
	l.Info("target resolved",
		"organization", t.OrganizationName,
		"network", t.NetworkName,
		"ssid", t.SSIDName,
		"ssid_number", t.SSIDNumber,
	)
}

// LogUpdate logs a successful PSK change
func (l *Logger) LogUpdate(t target.Target, duration time.Duration, retries int) {
	l.Info("psk updated",
		"organization", t.OrganizationName,
		"network", t.NetworkName,
		"ssid", t.SSIDName,
		"duration_ms", duration.Milliseconds(),
		"retries", retries,
		// The passphrase itself is never logged
	)
}

// LogUpdateError logs a failed PSK change for one target
func (l *Logger) LogUpdateError(t target.Target, err error) {
	l.Error("psk update failed",
		"organization", t.OrganizationName,
		"network", t.NetworkName,
		"ssid", t.SSIDName,
		"error", err.Error(),
	)
}

// LogSkip logs a hierarchy branch dropped after a remote error
func (l *Logger) LogSkip(scope, name string, err error) {
	l.Error("skipping "+scope,
		scope, name,
		"error", err.Error(),
	)
}

// LogRetry logs a rate-limited call about to be retried
func (l *Logger) LogRetry(operation string, attempt int, wait time.Duration) {
	l.Info("rate limited, retrying",
		"operation", operation,
		"attempt", attempt,
		"wait_ms", wait.Milliseconds(),
	)
}

// LogExecutorStart logs the start of executor operations
func (l *Logger) LogExecutorStart(targetCount int, concurrency int, dryRun bool) {
	l.Info("executor started",
		"target_count", targetCount,
		"concurrency", concurrency,
		"dry_run", dryRun,
	)
}

// LogExecutorComplete logs the completion of executor operations
func (l *Logger) LogExecutorComplete(targetCount int, successCount int, failureCount int, duration time.Duration) {
	l.Info("executor completed",
		"target_count", targetCount,
		"success_count", successCount,
		"failure_count", failureCount,
		"total_duration_ms", duration.Milliseconds(),
	)
}

// LogConfigLoad logs configuration loading events
func (l *Logger) LogConfigLoad(source string) {
	l.Debug("configuration loaded",
		"source", source,
	)
}

// LogConfigError logs configuration errors
func (l *Logger) LogConfigError(source string, err error) {
	l.Error("configuration error",
		"source", source,
		"error", err.Error(),
	)
}

// NewLoggerFromConfig creates a logger from the CLI verbosity and format.
// A nil output means stderr.
func NewLoggerFromConfig(verbosity int, logFormat string, output io.Writer) *Logger {
	var format LogFormat
	switch logFormat {
	case "json":
		format = FormatJSON
	case "text":
		format = FormatText
	case "auto":
		format = FormatAuto
	default:
		format = FormatText
	}

	return NewLogger(Config{
		Level:  LevelFromVerbosity(verbosity),
		Format: format,
		Output: output,
	})
}
