package memory

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/butter-bot-machines/childproc/pkg/logging"
)

// Logger implements logging.Logger with in-memory storage. Loggers derived
// through With and WithGroup record into the same store.
type Logger struct {
	mu     sync.RWMutex
	level  logging.Level
	output io.Writer
	store  *store
	attrs  []interface{}
	groups []string
}

// store holds entries shared between a logger and its derivatives
type store struct {
	mu      sync.Mutex
	entries []LogEntry
}

// LogEntry represents a stored log entry
type LogEntry struct {
	Time    time.Time
	Level   logging.Level
	Message string
	Args    []interface{}
	Attrs   []interface{}
	Groups  []string
}

// Value returns the argument logged under key, if any
func (e LogEntry) Value(key string) (interface{}, bool) {
	for i := 0; i+1 < len(e.Args); i += 2 {
		if k, ok := e.Args[i].(string); ok && k == key {
			return e.Args[i+1], true
		}
	}
	return nil, false
}

// NewLogger creates a new memory logger
func NewLogger(level logging.Level, output io.Writer) *Logger {
	return &Logger{
		level:  level,
		output: output,
		store:  &store{},
		attrs:  make([]interface{}, 0),
		groups: make([]string, 0),
	}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.log(logging.LevelDebug, msg, args...)
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...interface{}) {
	l.log(logging.LevelInfo, msg, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.log(logging.LevelWarn, msg, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...interface{}) {
	l.log(logging.LevelError, msg, args...)
}

// With returns a new logger with additional attributes
func (l *Logger) With(args ...interface{}) logging.Logger {
	if len(args)%2 != 0 {
		args = append(args, "MISSING_VALUE")
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	attrs := make([]interface{}, len(l.attrs)+len(args))
	copy(attrs, l.attrs)
	copy(attrs[len(l.attrs):], args)

	return &Logger{
		level:  l.level,
		output: l.output,
		store:  l.store,
		attrs:  attrs,
		groups: append([]string{}, l.groups...),
	}
}

// WithGroup returns a new logger with an additional group
func (l *Logger) WithGroup(name string) logging.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return &Logger{
		level:  l.level,
		output: l.output,
		store:  l.store,
		attrs:  append([]interface{}{}, l.attrs...),
		groups: append(append([]string{}, l.groups...), name),
	}
}

// SetLevel sets the minimum log level
func (l *Logger) SetLevel(level logging.Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() logging.Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

// SetOutput sets the output writer
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
}

// GetOutput returns the current output writer
func (l *Logger) GetOutput() io.Writer {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.output
}

// GetEntries returns all stored log entries
func (l *Logger) GetEntries() []LogEntry {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	entries := make([]LogEntry, len(l.store.entries))
	copy(entries, l.store.entries)
	return entries
}

// Find returns the stored entries with the given message
func (l *Logger) Find(msg string) []LogEntry {
	var out []LogEntry
	for _, e := range l.GetEntries() {
		if e.Message == msg {
			out = append(out, e)
		}
	}
	return out
}

func (l *Logger) log(level logging.Level, msg string, args ...interface{}) {
	l.mu.RLock()
	minLevel, output := l.level, l.output
	attrs := append([]interface{}{}, l.attrs...)
	groups := append([]string{}, l.groups...)
	l.mu.RUnlock()

	if level < minLevel {
		return
	}

	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	entry := LogEntry{
		Time:    time.Now(),
		Level:   level,
		Message: msg,
		Args:    args,
		Attrs:   attrs,
		Groups:  groups,
	}
	l.store.entries = append(l.store.entries, entry)

	if output == nil {
		return
	}

	// Format: TIME [LEVEL] [GROUP1][GROUP2]... MESSAGE key1=value1 key2=value2 ...
	var b strings.Builder
	for _, g := range groups {
		fmt.Fprintf(&b, "[%s]", g)
	}
	if len(groups) > 0 {
		b.WriteByte(' ')
	}
	b.WriteString(msg)
	for _, kv := range [][]interface{}{attrs, args} {
		for i := 0; i+1 < len(kv); i += 2 {
			fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
		}
	}

	fmt.Fprintf(output, "%s [%s] %s\n",
		entry.Time.Format("2006-01-02T15:04:05.000"),
		level.String(),
		b.String(),
	)
}
