package oteladapters

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/AntonStoeckl/kv-eventstore-go/eventstore"
)

const (
	unitSeconds = "s"
	unitRecords = "{record}"
)

// MetricsCollector implements eventstore.ContextualMetricsCollector with an OpenTelemetry meter.
//
// Instruments are created on first use and cached by metric name:
//   - RecordDuration records into a Float64Histogram in seconds
//   - IncrementCounter adds 1 to an Int64Counter
//   - RecordValue records into a Float64Histogram, so the distribution of returned record counts is kept
type MetricsCollector struct {
	meter metric.Meter

	mu         sync.Mutex
	durations  map[string]metric.Float64Histogram
	counters   map[string]metric.Int64Counter
	values     map[string]metric.Float64Histogram
	onCreation func(name string, err error)
}

// MetricsOption configures a MetricsCollector.
type MetricsOption func(*MetricsCollector)

// WithInstrumentErrorHandler is called when the meter refuses to create an instrument.
// Measurements for that metric are dropped.
func WithInstrumentErrorHandler(handle func(name string, err error)) MetricsOption {
	return func(m *MetricsCollector) {
		m.onCreation = handle
	}
}

// NewMetricsCollector creates a MetricsCollector creating its instruments with meter.
func NewMetricsCollector(meter metric.Meter, options ...MetricsOption) *MetricsCollector {
	m := &MetricsCollector{
		meter:     meter,
		durations: make(map[string]metric.Float64Histogram),
		counters:  make(map[string]metric.Int64Counter),
		values:    make(map[string]metric.Float64Histogram),
	}

	for _, option := range options {
		option(m)
	}

	return m
}

// RecordDuration implements eventstore.MetricsCollector.
func (m *MetricsCollector) RecordDuration(name string, duration time.Duration, labels map[string]string) {
	m.RecordDurationContext(context.Background(), name, duration, labels)
}

// RecordDurationContext implements eventstore.ContextualMetricsCollector.
func (m *MetricsCollector) RecordDurationContext(
	ctx context.Context,
	name string,
	duration time.Duration,
	labels map[string]string,
) {
	histogram, ok := m.duration(name)
	if !ok {
		return
	}

	histogram.Record(ctx, duration.Seconds(), metric.WithAttributes(toAttributes(labels)...))
}

// IncrementCounter implements eventstore.MetricsCollector.
func (m *MetricsCollector) IncrementCounter(name string, labels map[string]string) {
	m.IncrementCounterContext(context.Background(), name, labels)
}

// IncrementCounterContext implements eventstore.ContextualMetricsCollector.
func (m *MetricsCollector) IncrementCounterContext(ctx context.Context, name string, labels map[string]string) {
	counter, ok := m.counter(name)
	if !ok {
		return
	}

	counter.Add(ctx, 1, metric.WithAttributes(toAttributes(labels)...))
}

// RecordValue implements eventstore.MetricsCollector.
func (m *MetricsCollector) RecordValue(name string, value float64, labels map[string]string) {
	m.RecordValueContext(context.Background(), name, value, labels)
}

// RecordValueContext implements eventstore.ContextualMetricsCollector.
func (m *MetricsCollector) RecordValueContext(ctx context.Context, name string, value float64, labels map[string]string) {
	histogram, ok := m.value(name)
	if !ok {
		return
	}

	histogram.Record(ctx, value, metric.WithAttributes(toAttributes(labels)...))
}

func (m *MetricsCollector) duration(name string) (metric.Float64Histogram, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if histogram, exists := m.durations[name]; exists {
		return histogram, true
	}

	histogram, err := m.meter.Float64Histogram(name,
		metric.WithDescription(describe(name, "duration of eventstore operations")),
		metric.WithUnit(unitSeconds),
	)
	if err != nil {
		m.creationFailed(name, err)
		return nil, false
	}

	m.durations[name] = histogram

	return histogram, true
}

func (m *MetricsCollector) counter(name string) (metric.Int64Counter, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if counter, exists := m.counters[name]; exists {
		return counter, true
	}

	counter, err := m.meter.Int64Counter(name, metric.WithDescription(describe(name, "eventstore occurrences")))
	if err != nil {
		m.creationFailed(name, err)
		return nil, false
	}

	m.counters[name] = counter

	return counter, true
}

func (m *MetricsCollector) value(name string) (metric.Float64Histogram, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if histogram, exists := m.values[name]; exists {
		return histogram, true
	}

	histogram, err := m.meter.Float64Histogram(name,
		metric.WithDescription(describe(name, "records per eventstore operation")),
		metric.WithUnit(unitRecords),
	)
	if err != nil {
		m.creationFailed(name, err)
		return nil, false
	}

	m.values[name] = histogram

	return histogram, true
}

func (m *MetricsCollector) creationFailed(name string, err error) {
	if m.onCreation != nil {
		m.onCreation(name, err)
	}
}

// describe turns eventstore_errors_total into "eventstore errors total (<fallback>)".
func describe(name string, fallback string) string {
	return strings.ReplaceAll(name, "_", " ") + " (" + fallback + ")"
}

var _ eventstore.ContextualMetricsCollector = (*MetricsCollector)(nil)
