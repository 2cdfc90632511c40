package slog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/butter-bot-machines/childproc/pkg/logging"
)

// LoggerWrapper wraps slog.Logger to implement logging.Logger
type LoggerWrapper struct {
	*slog.Logger
	level  logging.Level
	output io.Writer
	text   bool
}

// NewLogger creates a JSON logger with the given level and output
func NewLogger(level logging.Level, output io.Writer) logging.Logger {
	return newLogger(level, output, false)
}

// NewTextLogger creates a logger writing slog's key=value text format
func NewTextLogger(level logging.Level, output io.Writer) logging.Logger {
	return newLogger(level, output, true)
}

func newLogger(level logging.Level, output io.Writer, text bool) *LoggerWrapper {
	if output == nil {
		output = os.Stdout
	}
	return &LoggerWrapper{
		Logger: slog.New(newHandler(output, text)),
		level:  level,
		output: output,
		text:   text,
	}
}

// NewLoggerWrapper creates a new wrapped slog logger
func NewLoggerWrapper(logger *slog.Logger, level logging.Level, output io.Writer) *LoggerWrapper {
	return &LoggerWrapper{
		Logger: logger,
		level:  level,
		output: output,
	}
}

// newHandler builds a handler that passes every level; the wrapper does the
// filtering so SetLevel keeps attributes and groups intact
func newHandler(w io.Writer, text bool) slog.Handler {
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	if text {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// GetLevel returns the current log level
func (l *LoggerWrapper) GetLevel() logging.Level {
	return l.level
}

// SetLevel sets the log level
func (l *LoggerWrapper) SetLevel(level logging.Level) {
	l.level = level
}

// GetOutput returns the current output writer
func (l *LoggerWrapper) GetOutput() io.Writer {
	return l.output
}

// SetOutput sets the output writer. Attributes added through With are not
// carried over.
func (l *LoggerWrapper) SetOutput(w io.Writer) {
	l.output = w
	l.Logger = slog.New(newHandler(w, l.text))
}

// With returns a new logger with the given attributes
func (l *LoggerWrapper) With(args ...interface{}) logging.Logger {
	if len(args)%2 != 0 {
		args = append(args, "MISSING_VALUE")
	}

	return &LoggerWrapper{
		Logger: l.Logger.With(toAttrs(args)...),
		level:  l.level,
		output: l.output,
		text:   l.text,
	}
}

// WithGroup returns a new logger with the given group
func (l *LoggerWrapper) WithGroup(name string) logging.Logger {
	return &LoggerWrapper{
		Logger: l.Logger.WithGroup(name),
		level:  l.level,
		output: l.output,
		text:   l.text,
	}
}

// Debug logs a debug message
func (l *LoggerWrapper) Debug(msg string, args ...interface{}) {
	if logging.LevelDebug >= l.level {
		l.log(slog.LevelDebug, msg, args...)
	}
}

// Info logs an info message
func (l *LoggerWrapper) Info(msg string, args ...interface{}) {
	if logging.LevelInfo >= l.level {
		l.log(slog.LevelInfo, msg, args...)
	}
}

// Warn logs a warning message
func (l *LoggerWrapper) Warn(msg string, args ...interface{}) {
	if logging.LevelWarn >= l.level {
		l.log(slog.LevelWarn, msg, args...)
	}
}

// Error logs an error message
func (l *LoggerWrapper) Error(msg string, args ...interface{}) {
	if logging.LevelError >= l.level {
		l.log(slog.LevelError, msg, args...)
	}
}

// log handles the actual logging
func (l *LoggerWrapper) log(level slog.Level, msg string, args ...interface{}) {
	attrs := make([]slog.Attr, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		attrs = append(attrs, slog.Any(attrKey(args[i]), args[i+1]))
	}
	l.Logger.LogAttrs(context.Background(), level, msg, attrs...)
}

func toAttrs(args []interface{}) []any {
	attrs := make([]any, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		attrs = append(attrs, slog.Any(attrKey(args[i]), args[i+1]))
	}
	return attrs
}

func attrKey(k interface{}) string {
	if s, ok := k.(string); ok {
		return s
	}
	return fmt.Sprint(k)
}
