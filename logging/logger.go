package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogLevel represents logging levels
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Logger is the bot's structured logger.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a JSON logger writing to output at the given level.
// Unknown levels fall back to info.
func NewLogger(level LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}

	var logLevel slog.Level
	switch LogLevel(strings.ToLower(string(level))) {
	case LogLevelDebug:
		logLevel = slog.LevelDebug
	case LogLevelWarn:
		logLevel = slog.LevelWarn
	case LogLevelError:
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: logLevel,
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// With returns a logger that always includes the given key/value pairs.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component tags every record with the emitting component.
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default returns an info level logger directed to stdout
func Default() *Logger {
	return NewLogger(LogLevelInfo, os.Stdout)
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	return NewLogger(LogLevelError, io.Discard)
}
