package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// LogCapture records the JSON log lines of a logger so tests can assert on
// what a request logged, by level, message, field or component.
type LogCapture struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	logger *slog.Logger
}

// LogEntry is one decoded log line. Fields holds every attribute except
// level and msg.
type LogEntry struct {
	Level   string
	Message string
	Fields  map[string]any
}

// NewLogCapture creates a capture that records every level down to DEBUG.
func NewLogCapture() *LogCapture {
	lc := &LogCapture{}
	lc.logger = slog.New(slog.NewJSONHandler(lockedWriter{lc}, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return lc
}

// lockedWriter serializes writes from handlers running on server goroutines.
type lockedWriter struct{ lc *LogCapture }

func (w lockedWriter) Write(p []byte) (int, error) {
	w.lc.mu.Lock()
	defer w.lc.mu.Unlock()
	return w.lc.buf.Write(p)
}

// Logger returns the logger that writes into this capture.
func (lc *LogCapture) Logger() *slog.Logger {
	return lc.logger
}

// Entries decodes everything logged so far. Lines that are not JSON are skipped.
func (lc *LogCapture) Entries() []LogEntry {
	lc.mu.Lock()
	raw := append([]byte(nil), lc.buf.Bytes()...)
	lc.mu.Unlock()

	var entries []LogEntry
	for _, line := range bytes.Split(raw, []byte{'\n'}) {
		var fields map[string]any
		if len(line) == 0 || json.Unmarshal(line, &fields) != nil {
			continue
		}
		entry := LogEntry{Fields: fields}
		entry.Level, _ = fields["level"].(string)
		entry.Message, _ = fields["msg"].(string)
		delete(fields, "level")
		delete(fields, "msg")
		delete(fields, "time")
		entries = append(entries, entry)
	}
	return entries
}

// Find returns entries at level (any level when "") whose message contains msgSubstring.
func (lc *LogCapture) Find(level string, msgSubstring string) []LogEntry {
	var results []LogEntry
	for _, entry := range lc.Entries() {
		if (level == "" || strings.EqualFold(entry.Level, level)) &&
			strings.Contains(entry.Message, msgSubstring) {
			results = append(results, entry)
		}
	}
	return results
}

// FindByField returns entries whose key attribute prints as value.
func (lc *LogCapture) FindByField(key string, value any) []LogEntry {
	var results []LogEntry
	for _, entry := range lc.Entries() {
		if v, ok := entry.Fields[key]; ok && fmt.Sprint(v) == fmt.Sprint(value) {
			results = append(results, entry)
		}
	}
	return results
}

// FindByComponent returns entries logged by the given component
// (the "component" attribute every service logger carries).
func (lc *LogCapture) FindByComponent(component string) []LogEntry {
	return lc.FindByField("component", component)
}

// HasError reports whether anything was logged at ERROR.
func (lc *LogCapture) HasError() bool {
	return len(lc.Find("ERROR", "")) > 0
}

// Clear drops everything captured so far.
func (lc *LogCapture) Clear() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.buf.Reset()
}
