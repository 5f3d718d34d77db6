package kvengine

import (
	"errors"

	"github.com/AntonStoeckl/kv-eventstore-go/eventstore"
)

// ErrNilIDGenerator is returned by WithIDGenerator when no generator is supplied.
var ErrNilIDGenerator = errors.New("nil id generator supplied")

// ErrUnknownDispatchMode is returned by WithDispatchMode for modes this package does not implement.
var ErrUnknownDispatchMode = errors.New("unknown dispatch mode")

// Option defines a functional option for configuring Storage.
type Option func(*Storage) error

// WithLogger sets the logger for the Storage.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: collaborator round trips with execution timing (development use)
// Info level: completed operations with record counts and durations (production-safe)
// Warn level: concurrency conflicts of optimistic dispatch
// Error level: failures that cause operation failures.
func WithLogger(logger eventstore.Logger) Option {
	return func(s *Storage) error {
		s.obs.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Storage.
// It receives the same messages as the Logger, together with the operation's context,
// which carries the active span when tracing is enabled.
func WithContextualLogger(logger eventstore.ContextualLogger) Option {
	return func(s *Storage) error {
		s.obs.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Storage.
// It receives operation durations, record counts, errors by type, and concurrency conflicts.
func WithMetrics(collector eventstore.MetricsCollector) Option {
	return func(s *Storage) error {
		s.obs.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Storage. Every operation gets one span named "eventstore.<operation>".
func WithTracing(collector eventstore.TracingCollector) Option {
	return func(s *Storage) error {
		s.obs.tracingCollector = collector
		return nil
	}
}

// WithDispatchMode selects how SetEventToDispatched writes the flag back.
// eventstore.OptimisticDispatch requires a collaborator implementing kvstore.VersionedStore.
func WithDispatchMode(mode eventstore.DispatchMode) Option {
	return func(s *Storage) error {
		switch mode {
		case eventstore.LastWriterWins, eventstore.OptimisticDispatch:
			s.dispatchMode = mode
			return nil
		default:
			return ErrUnknownDispatchMode
		}
	}
}

// WithIDGenerator replaces the UUID based identifier generator.
func WithIDGenerator(generator eventstore.IDGenerator) Option {
	return func(s *Storage) error {
		if generator == nil {
			return ErrNilIDGenerator
		}

		s.ids = generator

		return nil
	}
}

// WithReplicaDSN makes Connect open a second pool for a read replica.
// Scans issued with eventual consistency are served by the replica. It has no effect on New.
func WithReplicaDSN(dsn string) Option {
	return func(s *Storage) error {
		s.replicaDSN = dsn
		return nil
	}
}
