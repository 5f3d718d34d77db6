package helper

import (
	"context"
	"maps"
	"sync"

	"github.com/AntonStoeckl/kv-eventstore-go/eventstore"
)

// SpySpanContext is the SpanContext handed out by TracingCollectorSpy.
type SpySpanContext struct {
	status     string
	attributes map[string]string
	mu         sync.Mutex
}

// SetStatus implements the SpanContext interface for testing.
func (c *SpySpanContext) SetStatus(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
}

// AddAttribute implements the SpanContext interface for testing.
func (c *SpySpanContext) AddAttribute(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attributes[key] = value
}

// GetStatus returns the current status of the span.
func (c *SpySpanContext) GetStatus() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// GetAttributes returns a copy of all attributes added to the span.
func (c *SpySpanContext) GetAttributes() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.attributes)
}

// SpySpanRecord represents one started span.
type SpySpanRecord struct {
	Name            string
	StartAttributes map[string]string
	Finished        bool
	FinishStatus    string
	EndAttributes   map[string]string
	SpanContext     *SpySpanContext
}

// TracingCollectorSpy is a TracingCollector implementation that captures tracing calls for testing.
type TracingCollectorSpy struct {
	spans []*SpySpanRecord
	mu    sync.Mutex
}

// NewTracingCollectorSpy creates a new TracingCollectorSpy.
func NewTracingCollectorSpy() *TracingCollectorSpy {
	return &TracingCollectorSpy{spans: make([]*SpySpanRecord, 0)}
}

// StartSpan implements the TracingCollector interface for testing.
func (s *TracingCollectorSpy) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, eventstore.SpanContext) {
	s.mu.Lock()
	defer s.mu.Unlock()

	spanCtx := &SpySpanContext{attributes: make(map[string]string)}
	s.spans = append(s.spans, &SpySpanRecord{
		Name:            name,
		StartAttributes: maps.Clone(attrs),
		SpanContext:     spanCtx,
	})

	return ctx, spanCtx
}

// FinishSpan implements the TracingCollector interface for testing.
func (s *TracingCollectorSpy) FinishSpan(spanCtx eventstore.SpanContext, status string, attrs map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, span := range s.spans {
		if span.SpanContext == spanCtx {
			span.Finished = true
			span.FinishStatus = status
			span.EndAttributes = maps.Clone(attrs)
			return
		}
	}
}

// GetSpans returns copies of all recorded spans.
func (s *TracingCollectorSpy) GetSpans() []SpySpanRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	spans := make([]SpySpanRecord, 0, len(s.spans))
	for _, span := range s.spans {
		spans = append(spans, *span)
	}

	return spans
}

// FindSpan returns the first recorded span with the given name.
func (s *TracingCollectorSpy) FindSpan(name string) (SpySpanRecord, bool) {
	for _, span := range s.GetSpans() {
		if span.Name == name {
			return span, true
		}
	}

	return SpySpanRecord{}, false
}

// Compile-time check to ensure TracingCollectorSpy implements TracingCollector interface.
var _ eventstore.TracingCollector = (*TracingCollectorSpy)(nil)
