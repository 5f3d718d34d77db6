package oteladapters

import (
	"context"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AntonStoeckl/kv-eventstore-go/eventstore"
)

const (
	statusSuccess     = "success"
	statusError       = "error"
	attrErrorType     = "error_type"
	attrDBSystem      = "db.system"
	attrUnknownStatus = "eventstore.status"
)

// TracingOption configures a TracingCollector.
type TracingOption func(*TracingCollector)

// WithDBSystem adds a db.system attribute to every span, e.g. "postgresql" or "sqlite".
func WithDBSystem(system string) TracingOption {
	return func(c *TracingCollector) {
		c.baseAttrs = append(c.baseAttrs, attribute.String(attrDBSystem, system))
	}
}

// TracingCollector implements eventstore.TracingCollector with an OpenTelemetry tracer.
// Operation spans are client spans, they cover the round trips to the persistence collaborator.
type TracingCollector struct {
	tracer    trace.Tracer
	baseAttrs []attribute.KeyValue
}

// NewTracingCollector creates a TracingCollector starting its spans with tracer.
func NewTracingCollector(tracer trace.Tracer, options ...TracingOption) *TracingCollector {
	c := &TracingCollector{tracer: tracer}
	for _, option := range options {
		option(c)
	}

	return c
}

// StartSpan implements eventstore.TracingCollector.
func (c *TracingCollector) StartSpan(
	ctx context.Context,
	name string,
	attrs map[string]string,
) (context.Context, eventstore.SpanContext) {
	spanAttrs := append(toAttributes(attrs), c.baseAttrs...)

	spanCtx, span := c.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(spanAttrs...),
	)

	return spanCtx, &Span{span: span}
}

// FinishSpan implements eventstore.TracingCollector. Spans not started by a TracingCollector are ignored.
func (c *TracingCollector) FinishSpan(spanCtx eventstore.SpanContext, status string, attrs map[string]string) {
	span, ok := spanCtx.(*Span)
	if !ok {
		return
	}

	span.span.SetAttributes(toAttributes(attrs)...)
	span.setStatus(status, attrs[attrErrorType])
	span.span.End()
}

var _ eventstore.TracingCollector = (*TracingCollector)(nil)

// Span wraps an OpenTelemetry span as eventstore.SpanContext.
type Span struct {
	span trace.Span
}

// SetStatus implements eventstore.SpanContext.
func (s *Span) SetStatus(status string) {
	s.setStatus(status, "")
}

// AddAttribute implements eventstore.SpanContext.
func (s *Span) AddAttribute(key, value string) {
	s.span.SetAttributes(attribute.String(key, value))
}

// SpanContext returns the OpenTelemetry span context, e.g. for correlating logs.
func (s *Span) SpanContext() trace.SpanContext {
	return s.span.SpanContext()
}

func (s *Span) setStatus(status string, errorType string) {
	switch status {
	case statusSuccess:
		s.span.SetStatus(codes.Ok, "")
	case statusError:
		description := "operation failed"
		if errorType != "" {
			description = errorType
		}

		s.span.SetStatus(codes.Error, description)
	default:
		s.span.SetAttributes(attribute.String(attrUnknownStatus, status))
	}
}

var _ eventstore.SpanContext = (*Span)(nil)

// toAttributes converts labels in a stable order.
func toAttributes(labels map[string]string) []attribute.KeyValue {
	keys := make([]string, 0, len(labels))
	for key := range labels {
		keys = append(keys, key)
	}

	slices.Sort(keys)

	attrs := make([]attribute.KeyValue, 0, len(keys))
	for _, key := range keys {
		attrs = append(attrs, attribute.String(key, labels[key]))
	}

	return attrs
}
