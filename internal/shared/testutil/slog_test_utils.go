package testutil

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// LogRecord is a captured log record
type LogRecord struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// logSink is shared by a handler and every handler derived from it through
// WithAttrs, so records logged by component loggers are visible to the test.
type logSink struct {
	mu      sync.Mutex
	records []LogRecord
}

// BufferedSlogHandler captures log records for assertions
type BufferedSlogHandler struct {
	sink  *logSink
	attrs []slog.Attr
	t     testing.TB
}

// NewBufferedSlogHandler creates a handler that records everything it sees
func NewBufferedSlogHandler(t testing.TB) *BufferedSlogHandler {
	return &BufferedSlogHandler{sink: &logSink{}, t: t}
}

// NewTestLogger creates a logger backed by a BufferedSlogHandler
func NewTestLogger(t testing.TB) (*slog.Logger, *BufferedSlogHandler) {
	handler := NewBufferedSlogHandler(t)
	return slog.New(handler), handler
}

func (h *BufferedSlogHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})

	h.sink.mu.Lock()
	h.sink.records = append(h.sink.records, LogRecord{
		Time:    r.Time,
		Level:   r.Level,
		Message: r.Message,
		Attrs:   attrs,
	})
	h.sink.mu.Unlock()

	if h.t != nil {
		h.t.Logf("[%s] %s %v", r.Level, r.Message, attrs)
	}
	return nil
}

func (h *BufferedSlogHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *BufferedSlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &BufferedSlogHandler{sink: h.sink, attrs: merged, t: h.t}
}

// WithGroup is flattened; tests match on attribute keys only.
func (h *BufferedSlogHandler) WithGroup(string) slog.Handler {
	return h
}

// Records returns a copy of the captured records
func (h *BufferedSlogHandler) Records() []LogRecord {
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	return append([]LogRecord(nil), h.sink.records...)
}

// Find returns the first record whose message contains msg
func (h *BufferedSlogHandler) Find(msg string) (LogRecord, bool) {
	for _, r := range h.Records() {
		if strings.Contains(r.Message, msg) {
			return r, true
		}
	}
	return LogRecord{}, false
}

// ContainsMessage reports whether any record contains msg
func (h *BufferedSlogHandler) ContainsMessage(msg string) bool {
	_, ok := h.Find(msg)
	return ok
}

// AssertLogContains fails the test unless a record at level contains msg
func AssertLogContains(t testing.TB, h *BufferedSlogHandler, level slog.Level, msg string) {
	t.Helper()
	for _, r := range h.Records() {
		if r.Level == level && strings.Contains(r.Message, msg) {
			return
		}
	}
	t.Errorf("expected %s log containing %q", level, msg)
	for _, r := range h.Records() {
		t.Logf("  [%s] %s", r.Level, r.Message)
	}
}
