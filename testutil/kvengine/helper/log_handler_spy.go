package helper

import (
	"context"
	"log/slog"
	"os"
	"sync"
)

// LogHandlerSpy is a slog.Handler implementation that captures log records for testing.
type LogHandlerSpy struct {
	records     []slog.Record
	mu          sync.Mutex
	logToStdout bool
}

// NewLogHandlerSpy creates a new LogHandlerSpy.
// Switchable to log to stdout, which can be useful for debugging tests by seeing the actual log output.
func NewLogHandlerSpy(logToStdout bool) *LogHandlerSpy {
	return &LogHandlerSpy{
		records:     make([]slog.Record, 0),
		logToStdout: logToStdout,
	}
}

// Handle implements slog.Handler interface.
func (s *LogHandlerSpy) Handle(ctx context.Context, record slog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record.Clone())

	if s.logToStdout {
		_ = slog.NewJSONHandler(os.Stdout, nil).Handle(ctx, record)
	}

	return nil
}

// Enabled implements slog.Handler interface.
func (s *LogHandlerSpy) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

// WithAttrs implements slog.Handler interface.
func (s *LogHandlerSpy) WithAttrs(_ []slog.Attr) slog.Handler {
	return s
}

// WithGroup implements slog.Handler interface.
func (s *LogHandlerSpy) WithGroup(_ string) slog.Handler {
	return s
}

// SpyLogRecordMatcher provides a fluent interface for checking log record attributes.
type SpyLogRecordMatcher struct {
	record slog.Record
	found  bool
}

// hasLog starts a fluent chain to check the first log record with the given level and message.
func (s *LogHandlerSpy) hasLog(level slog.Level, message string) *SpyLogRecordMatcher {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range s.records {
		if record.Level == level && record.Message == message {
			return &SpyLogRecordMatcher{record: record, found: true}
		}
	}

	return &SpyLogRecordMatcher{found: false}
}

// HasDebugLog starts a fluent chain to check a debug-level log record.
func (s *LogHandlerSpy) HasDebugLog(message string) *SpyLogRecordMatcher {
	return s.hasLog(slog.LevelDebug, message)
}

// HasInfoLog starts a fluent chain to check an info-level log record.
func (s *LogHandlerSpy) HasInfoLog(message string) *SpyLogRecordMatcher {
	return s.hasLog(slog.LevelInfo, message)
}

// HasWarnLog starts a fluent chain to check a warn-level log record.
func (s *LogHandlerSpy) HasWarnLog(message string) *SpyLogRecordMatcher {
	return s.hasLog(slog.LevelWarn, message)
}

// HasErrorLog starts a fluent chain to check an error-level log record.
func (s *LogHandlerSpy) HasErrorLog(message string) *SpyLogRecordMatcher {
	return s.hasLog(slog.LevelError, message)
}

// WithDurationMS checks if the log record has a non-negative duration_ms attribute.
func (m *SpyLogRecordMatcher) WithDurationMS() *SpyLogRecordMatcher {
	return m.withAttr("duration_ms", func(v slog.Value) bool {
		switch v.Kind() {
		case slog.KindFloat64:
			return v.Float64() >= 0
		case slog.KindInt64:
			return v.Int64() >= 0
		default:
			return false
		}
	})
}

// WithRecordCount checks if the log record has a record_count attribute with the given value.
func (m *SpyLogRecordMatcher) WithRecordCount(count int) *SpyLogRecordMatcher {
	return m.withAttr("record_count", func(v slog.Value) bool {
		return v.Kind() == slog.KindInt64 && v.Int64() == int64(count)
	})
}

// WithAttr checks if the log record has an attribute whose rendered value equals value.
func (m *SpyLogRecordMatcher) WithAttr(key string, value string) *SpyLogRecordMatcher {
	return m.withAttr(key, func(v slog.Value) bool {
		return v.String() == value
	})
}

func (m *SpyLogRecordMatcher) withAttr(key string, accept func(slog.Value) bool) *SpyLogRecordMatcher {
	if !m.found {
		return m
	}

	matched := false
	m.record.Attrs(func(attr slog.Attr) bool {
		if attr.Key == key && accept(attr.Value) {
			matched = true
			return false
		}

		return true
	})

	m.found = matched

	return m
}

// Assert returns true if all conditions in the fluent chain were met.
func (m *SpyLogRecordMatcher) Assert() bool {
	return m.found
}
