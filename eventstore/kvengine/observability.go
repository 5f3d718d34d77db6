package kvengine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/AntonStoeckl/kv-eventstore-go/eventstore"
)

// instrumentation bundles the optional observability collaborators shared by both repositories.
// Every method is a no-op for collaborators which are not configured.
type instrumentation struct {
	logger           eventstore.Logger
	contextualLogger eventstore.ContextualLogger
	metricsCollector eventstore.MetricsCollector
	tracingCollector eventstore.TracingCollector
}

// logStoreCall logs a collaborator round trip with its duration at debug level.
func (in *instrumentation) logStoreCall(ctx context.Context, call string, duration time.Duration, args ...any) {
	allArgs := []any{logAttrDurationMS, toMilliseconds(duration)}
	allArgs = append(allArgs, args...)

	if in.logger != nil {
		in.logger.Debug(logMsgStoreCall+call, allArgs...)
	}

	if in.contextualLogger != nil {
		in.contextualLogger.DebugContext(ctx, logMsgStoreCall+call, allArgs...)
	}
}

// logOperation logs operational information at info level.
func (in *instrumentation) logOperation(ctx context.Context, operation string, args ...any) {
	if in.logger != nil {
		in.logger.Info(logMsgOperation+operation, args...)
	}

	if in.contextualLogger != nil {
		in.contextualLogger.InfoContext(ctx, logMsgOperation+operation, args...)
	}
}

// logWarning logs non-fatal problems at warn level.
func (in *instrumentation) logWarning(ctx context.Context, message string, args ...any) {
	if in.logger != nil {
		in.logger.Warn(message, args...)
	}

	if in.contextualLogger != nil {
		in.contextualLogger.WarnContext(ctx, message, args...)
	}
}

// logError logs error information at the error level.
func (in *instrumentation) logError(ctx context.Context, message string, err error, args ...any) {
	allArgs := []any{logAttrError, err.Error()}
	allArgs = append(allArgs, args...)

	if in.logger != nil {
		in.logger.Error(message, allArgs...)
	}

	if in.contextualLogger != nil {
		in.contextualLogger.ErrorContext(ctx, message, allArgs...)
	}
}

// recordDuration records a duration metric with context if the collector supports it.
func (in *instrumentation) recordDuration(ctx context.Context, duration time.Duration, operation, status string) {
	if in.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		labelOperation: operation,
		labelStatus:    status,
	}

	if contextualCollector, ok := in.metricsCollector.(eventstore.ContextualMetricsCollector); ok {
		contextualCollector.RecordDurationContext(ctx, metricOperationDuration, duration, labels)
	} else {
		in.metricsCollector.RecordDuration(metricOperationDuration, duration, labels)
	}
}

// recordValue records a value metric with context if the collector supports it.
func (in *instrumentation) recordValue(ctx context.Context, metricName string, value float64, operation string) {
	if in.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		labelOperation: operation,
		labelStatus:    statusSuccess,
	}

	if contextualCollector, ok := in.metricsCollector.(eventstore.ContextualMetricsCollector); ok {
		contextualCollector.RecordValueContext(ctx, metricName, value, labels)
	} else {
		in.metricsCollector.RecordValue(metricName, value, labels)
	}
}

// incrementCounter increments a counter metric with context if the collector supports it.
func (in *instrumentation) incrementCounter(ctx context.Context, metricName string, labels map[string]string) {
	if in.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := in.metricsCollector.(eventstore.ContextualMetricsCollector); ok {
		contextualCollector.IncrementCounterContext(ctx, metricName, labels)
	} else {
		in.metricsCollector.IncrementCounter(metricName, labels)
	}
}

// startTraceSpan starts a tracing span if the tracing collector is configured.
func (in *instrumentation) startTraceSpan(
	ctx context.Context,
	name string,
	attrs map[string]string,
) (context.Context, eventstore.SpanContext) {
	if in.tracingCollector != nil {
		return in.tracingCollector.StartSpan(ctx, name, attrs)
	}

	return ctx, nil
}

// finishTraceSpan finishes a tracing span if the tracing collector is configured.
func (in *instrumentation) finishTraceSpan(span eventstore.SpanContext, status string, attrs map[string]string) {
	if in.tracingCollector != nil && span != nil {
		in.tracingCollector.FinishSpan(span, status, attrs)
	}
}

// === Operation Observer ===
// One observer covers the tracing span, the metrics, and the completion log of a single repository operation.

type operationObserver struct {
	in        *instrumentation
	ctx       context.Context
	operation string
	span      eventstore.SpanContext
	start     time.Time
}

// startOperation opens the span for operation and starts timing it.
// The returned context carries the span and must be used for all collaborator calls of the operation.
func (in *instrumentation) startOperation(
	ctx context.Context,
	operation string,
	attrs map[string]string,
) (*operationObserver, context.Context) {
	spanAttrs := map[string]string{spanAttrOperation: operation}
	for key, value := range attrs {
		spanAttrs[key] = value
	}

	newCtx, span := in.startTraceSpan(ctx, spanNamePrefix+operation, spanAttrs)

	return &operationObserver{
		in:        in,
		ctx:       newCtx,
		operation: operation,
		span:      span,
		start:     time.Now(),
	}, newCtx
}

// finishSuccess completes the operation. recordCount is the number of events or snapshots written or returned.
func (o *operationObserver) finishSuccess(recordCount int, args ...any) {
	duration := time.Since(o.start)
	count := strconv.Itoa(recordCount)

	o.in.recordDuration(o.ctx, duration, o.operation, statusSuccess)
	o.in.recordValue(o.ctx, metricRecordCount, float64(recordCount), o.operation)

	if o.span != nil {
		o.span.SetStatus(statusSuccess)
		o.span.AddAttribute(spanAttrRecordCount, count)
		o.span.AddAttribute(spanAttrDurationMS, formatMilliseconds(duration))
	}

	o.in.finishTraceSpan(o.span, statusSuccess, map[string]string{spanAttrRecordCount: count})

	logArgs := []any{logAttrRecordCount, recordCount, logAttrDurationMS, toMilliseconds(duration)}
	logArgs = append(logArgs, args...)
	o.in.logOperation(o.ctx, o.operation, logArgs...)
}

// finishError completes the operation with err, classifying it for metrics and span attributes.
func (o *operationObserver) finishError(message string, err error, args ...any) {
	duration := time.Since(o.start)
	errorType := classifyError(err)

	o.in.recordDuration(o.ctx, duration, o.operation, statusError)
	o.in.incrementCounter(o.ctx, metricErrors, map[string]string{
		labelOperation: o.operation,
		labelStatus:    statusError,
		labelErrorType: errorType,
	})

	if errorType == errorTypeConcurrencyConflict {
		o.in.incrementCounter(o.ctx, metricConcurrencyConflicts, map[string]string{
			labelOperation:    o.operation,
			labelConflictType: "concurrency",
		})
	}

	if o.span != nil {
		o.span.SetStatus(statusError)
		o.span.AddAttribute(spanAttrErrorType, errorType)
		o.span.AddAttribute(spanAttrDurationMS, formatMilliseconds(duration))
	}

	o.in.finishTraceSpan(o.span, statusError, map[string]string{spanAttrErrorType: errorType})

	if errorType == errorTypeConcurrencyConflict {
		o.in.logWarning(o.ctx, logMsgConcurrencyConflict, append([]any{logAttrOperation, o.operation}, args...)...)
		return
	}

	o.in.logError(o.ctx, message, err, append([]any{logAttrOperation, o.operation}, args...)...)
}

// classifyError maps an error to a low-cardinality label value.
func classifyError(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return errorTypeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return errorTypeTimeout
	case errors.Is(err, eventstore.ErrConcurrencyConflict):
		return errorTypeConcurrencyConflict
	case errors.Is(err, eventstore.ErrNotFound):
		return errorTypeNotFound
	case errors.Is(err, eventstore.ErrDecodingRecordFailed):
		return errorTypeDecoding
	case errors.Is(err, eventstore.ErrPersistenceFailed):
		return errorTypePersistence
	case errors.Is(err, eventstore.ErrInvalidEvent),
		errors.Is(err, eventstore.ErrInvalidSnapshot),
		errors.Is(err, eventstore.ErrInvalidAmount),
		errors.Is(err, eventstore.ErrEmptyEventBatch):
		return errorTypeValidation
	case errors.Is(err, ErrPublishingEventFailed):
		return errorTypePublishing
	default:
		return errorTypeUnknown
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

func formatMilliseconds(d time.Duration) string {
	return fmt.Sprintf("%.2f", float64(d.Nanoseconds())/1e6)
}
