package helper

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/AntonStoeckl/kv-eventstore-go/eventstore"
)

// MetricKind tells which collector method produced a SpyMetricRecord.
type MetricKind string

const (
	MetricKindDuration MetricKind = "duration"
	MetricKindCounter  MetricKind = "counter"
	MetricKindValue    MetricKind = "value"
)

// SpyMetricRecord represents one recorded metrics call.
type SpyMetricRecord struct {
	Kind        MetricKind
	Metric      string
	Duration    time.Duration
	Value       float64
	Labels      map[string]string
	WithContext bool
}

// MetricsCollectorSpy is a ContextualMetricsCollector implementation that captures metrics calls for testing.
type MetricsCollectorSpy struct {
	records []SpyMetricRecord
	mu      sync.Mutex
}

// NewMetricsCollectorSpy creates a new MetricsCollectorSpy.
func NewMetricsCollectorSpy() *MetricsCollectorSpy {
	return &MetricsCollectorSpy{records: make([]SpyMetricRecord, 0)}
}

func (s *MetricsCollectorSpy) record(r SpyMetricRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.Labels = maps.Clone(r.Labels)
	s.records = append(s.records, r)
}

// RecordDuration implements the MetricsCollector interface.
func (s *MetricsCollectorSpy) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	s.record(SpyMetricRecord{Kind: MetricKindDuration, Metric: metric, Duration: duration, Labels: labels})
}

// IncrementCounter implements the MetricsCollector interface.
func (s *MetricsCollectorSpy) IncrementCounter(metric string, labels map[string]string) {
	s.record(SpyMetricRecord{Kind: MetricKindCounter, Metric: metric, Value: 1, Labels: labels})
}

// RecordValue implements the MetricsCollector interface.
func (s *MetricsCollectorSpy) RecordValue(metric string, value float64, labels map[string]string) {
	s.record(SpyMetricRecord{Kind: MetricKindValue, Metric: metric, Value: value, Labels: labels})
}

// RecordDurationContext implements the ContextualMetricsCollector interface.
func (s *MetricsCollectorSpy) RecordDurationContext(_ context.Context, metric string, duration time.Duration, labels map[string]string) {
	s.record(SpyMetricRecord{Kind: MetricKindDuration, Metric: metric, Duration: duration, Labels: labels, WithContext: true})
}

// IncrementCounterContext implements the ContextualMetricsCollector interface.
func (s *MetricsCollectorSpy) IncrementCounterContext(_ context.Context, metric string, labels map[string]string) {
	s.record(SpyMetricRecord{Kind: MetricKindCounter, Metric: metric, Value: 1, Labels: labels, WithContext: true})
}

// RecordValueContext implements the ContextualMetricsCollector interface.
func (s *MetricsCollectorSpy) RecordValueContext(_ context.Context, metric string, value float64, labels map[string]string) {
	s.record(SpyMetricRecord{Kind: MetricKindValue, Metric: metric, Value: value, Labels: labels, WithContext: true})
}

func (s *MetricsCollectorSpy) copyRecords() []SpyMetricRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]SpyMetricRecord(nil), s.records...)
}

// CountRecords counts the records for a metric name.
func (s *MetricsCollectorSpy) CountRecords(metric string) int {
	count := 0
	for _, r := range s.copyRecords() {
		if r.Metric == metric {
			count++
		}
	}

	return count
}

// MetricRecordMatcher provides a fluent interface for checking metric records.
// Every With* call narrows the set of candidate records.
type MetricRecordMatcher struct {
	candidates []SpyMetricRecord
}

// HasRecord starts a fluent chain over all records of the given metric name.
func (s *MetricsCollectorSpy) HasRecord(metric string) *MetricRecordMatcher {
	candidates := make([]SpyMetricRecord, 0)
	for _, r := range s.copyRecords() {
		if r.Metric == metric {
			candidates = append(candidates, r)
		}
	}

	return &MetricRecordMatcher{candidates: candidates}
}

func (m *MetricRecordMatcher) withLabel(key, value string) *MetricRecordMatcher {
	return m.filter(func(r SpyMetricRecord) bool { return r.Labels[key] == value })
}

// WithOperation keeps the records of the given operation.
func (m *MetricRecordMatcher) WithOperation(operation string) *MetricRecordMatcher {
	return m.withLabel("operation", operation)
}

// WithStatus keeps the records with the given status label.
func (m *MetricRecordMatcher) WithStatus(status string) *MetricRecordMatcher {
	return m.withLabel("status", status)
}

// WithErrorType keeps the records with the given error_type label.
func (m *MetricRecordMatcher) WithErrorType(errorType string) *MetricRecordMatcher {
	return m.withLabel("error_type", errorType)
}

// WithValue keeps the records with the given value.
func (m *MetricRecordMatcher) WithValue(value float64) *MetricRecordMatcher {
	return m.filter(func(r SpyMetricRecord) bool { return r.Value == value })
}

// WithContext keeps the records made through the context-aware methods.
func (m *MetricRecordMatcher) WithContext() *MetricRecordMatcher {
	return m.filter(func(r SpyMetricRecord) bool { return r.WithContext })
}

func (m *MetricRecordMatcher) filter(keep func(SpyMetricRecord) bool) *MetricRecordMatcher {
	kept := make([]SpyMetricRecord, 0, len(m.candidates))
	for _, r := range m.candidates {
		if keep(r) {
			kept = append(kept, r)
		}
	}

	return &MetricRecordMatcher{candidates: kept}
}

// Assert returns true if at least one record satisfies all conditions of the chain.
func (m *MetricRecordMatcher) Assert() bool {
	return len(m.candidates) > 0
}

// Compile-time check to ensure MetricsCollectorSpy implements ContextualMetricsCollector interface.
var _ eventstore.ContextualMetricsCollector = (*MetricsCollectorSpy)(nil)
