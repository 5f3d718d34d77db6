package oteladapters_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/AntonStoeckl/kv-eventstore-go/eventstore/oteladapters"
)

func newTracer(t *testing.T) (trace.Tracer, *tracetest.InMemoryExporter) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	return provider.Tracer("test"), exporter
}

func spanAttribute(span tracetest.SpanStub, key string) (string, bool) {
	for _, attr := range span.Attributes {
		if string(attr.Key) == key {
			return attr.Value.AsString(), true
		}
	}

	return "", false
}

func Test_TracingCollector_SuccessfulSpan(t *testing.T) {
	// setup
	tracer, exporter := newTracer(t)
	collector := oteladapters.NewTracingCollector(tracer, oteladapters.WithDBSystem("postgresql"))

	// act
	ctx, span := collector.StartSpan(context.Background(), "eventstore.get_events", map[string]string{
		"operation": "get_events",
		"stream_id": "s1",
	})
	span.AddAttribute("record_count", "3")
	collector.FinishSpan(span, "success", map[string]string{"duration_ms": "1.50"})

	// assert
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)

	stub := spans[0]
	assert.Equal(t, "eventstore.get_events", stub.Name)
	assert.Equal(t, trace.SpanKindClient, stub.SpanKind)
	assert.Equal(t, codes.Ok, stub.Status.Code)
	assert.Equal(t, stub.SpanContext.SpanID(), trace.SpanContextFromContext(ctx).SpanID())

	for key, expected := range map[string]string{
		"operation":    "get_events",
		"stream_id":    "s1",
		"record_count": "3",
		"duration_ms":  "1.50",
		"db.system":    "postgresql",
	} {
		value, found := spanAttribute(stub, key)
		assert.True(t, found, key)
		assert.Equal(t, expected, value, key)
	}
}

func Test_TracingCollector_StatusMapping(t *testing.T) {
	tests := []struct {
		name                string
		status              string
		attrs               map[string]string
		expectedCode        codes.Code
		expectedDescription string
	}{
		{name: "success", status: "success", expectedCode: codes.Ok},
		{name: "error_with_type", status: "error", attrs: map[string]string{"error_type": "concurrency_conflict"}, expectedCode: codes.Error, expectedDescription: "concurrency_conflict"},
		{name: "error_without_type", status: "error", expectedCode: codes.Error, expectedDescription: "operation failed"},
		{name: "unknown_status", status: "partial", expectedCode: codes.Unset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// setup
			tracer, exporter := newTracer(t)
			collector := oteladapters.NewTracingCollector(tracer)

			// act
			_, span := collector.StartSpan(context.Background(), "eventstore.add_events", nil)
			collector.FinishSpan(span, tt.status, tt.attrs)

			// assert
			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			assert.Equal(t, tt.expectedCode, spans[0].Status.Code)
			assert.Equal(t, tt.expectedDescription, spans[0].Status.Description)

			if tt.expectedCode == codes.Unset {
				assert.Contains(t, spans[0].Attributes, attribute.String("eventstore.status", tt.status))
			}
		})
	}
}

func Test_TracingCollector_NestsSpansInTheCallerTrace(t *testing.T) {
	// setup
	tracer, exporter := newTracer(t)
	collector := oteladapters.NewTracingCollector(tracer)
	parentCtx, parent := tracer.Start(context.Background(), "handle_command")

	// act
	_, span := collector.StartSpan(parentCtx, "eventstore.add_events", nil)
	collector.FinishSpan(span, "success", nil)
	parent.End()

	// assert
	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, parent.SpanContext().TraceID(), spans[0].SpanContext.TraceID())
	assert.Equal(t, parent.SpanContext().SpanID(), spans[0].Parent.SpanID())
}

type foreignSpan struct{}

func (foreignSpan) SetStatus(string)            {}
func (foreignSpan) AddAttribute(string, string) {}

func Test_TracingCollector_IgnoresForeignSpans(t *testing.T) {
	// setup
	tracer, exporter := newTracer(t)
	collector := oteladapters.NewTracingCollector(tracer)

	// act + assert
	assert.NotPanics(t, func() { collector.FinishSpan(foreignSpan{}, "success", nil) })
	assert.Empty(t, exporter.GetSpans())
}
