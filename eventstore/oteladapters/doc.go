// Package oteladapters connects the observability hooks of kvengine.Storage to OpenTelemetry.
//
// Wire them with the kvengine options:
//
//	storage, err := kvengine.Connect(ctx, cfg,
//		kvengine.WithTracing(oteladapters.NewTracingCollector(tracerProvider.Tracer("eventstore"))),
//		kvengine.WithMetrics(oteladapters.NewMetricsCollector(meterProvider.Meter("eventstore"))),
//		kvengine.WithContextualLogger(oteladapters.NewSlogBridgeLogger("eventstore")),
//	)
//
// Every adapter is safe for concurrent use.
package oteladapters
