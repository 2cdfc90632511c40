package testutil

import (
	"encoding/json"
	"strings"
	"testing"
)

// LogEntry is one decoded JSON log line
type LogEntry struct {
	Time    string
	Level   string
	Message string
	Attrs   map[string]interface{}
}

// Group returns the attributes nested under a slog group, or nil
func (e LogEntry) Group(names ...string) map[string]interface{} {
	attrs := e.Attrs
	for _, name := range names {
		nested, ok := attrs[name].(map[string]interface{})
		if !ok {
			return nil
		}
		attrs = nested
	}
	return attrs
}

// ParseLogEntry decodes a single JSON log line
func ParseLogEntry(t *testing.T, line string) LogEntry {
	t.Helper()

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &raw); err != nil {
		t.Fatalf("Failed to parse log entry %q: %v", line, err)
	}

	entry := LogEntry{Attrs: make(map[string]interface{})}
	for k, v := range raw {
		switch k {
		case "time":
			entry.Time, _ = v.(string)
		case "level":
			entry.Level, _ = v.(string)
		case "msg":
			entry.Message, _ = v.(string)
		default:
			entry.Attrs[k] = v
		}
	}
	return entry
}

// ParseLogEntries decodes every non-empty line of output
func ParseLogEntries(t *testing.T, output string) []LogEntry {
	t.Helper()

	var entries []LogEntry
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		entries = append(entries, ParseLogEntry(t, line))
	}
	return entries
}
