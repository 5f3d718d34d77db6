package eventstore

import "context"

// ConsistencyLevel tells a persistence store which copy of the data a read may use.
type ConsistencyLevel int

const (
	// StrongConsistency reads from the primary. A context without a level means this.
	StrongConsistency ConsistencyLevel = iota

	// EventualConsistency lets a replica serve the read. Scans use it unless
	// QueryOptions.StrongConsistency is set.
	EventualConsistency
)

type contextKey string

// ConsistencyLevelKey is the context key the level is stored under.
const ConsistencyLevelKey contextKey = "eventstore.consistency_level"

// WithStrongConsistency returns a context that signals store reads must hit the primary.
//
// The read of the dispatch read-modify-write always runs with it.
func WithStrongConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, ConsistencyLevelKey, StrongConsistency)
}

// WithEventualConsistency returns a context that signals store reads may be served by a replica.
//
// Example usage:
//
//	ctx = eventstore.WithEventualConsistency(ctx)
//	events, err := storage.GetEvents(ctx, streamID, 0, eventstore.UnboundedRevision)
func WithEventualConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, ConsistencyLevelKey, EventualConsistency)
}

// GetConsistencyLevel returns the level carried by ctx, StrongConsistency if there is none.
func GetConsistencyLevel(ctx context.Context) ConsistencyLevel {
	if level, ok := ctx.Value(ConsistencyLevelKey).(ConsistencyLevel); ok {
		return level
	}
	return StrongConsistency
}

func (c ConsistencyLevel) String() string {
	switch c {
	case StrongConsistency:
		return "strong"
	case EventualConsistency:
		return "eventual"
	default:
		return "unknown"
	}
}

// DispatchMode defines how SetEventToDispatched updates the stored event.
type DispatchMode int

const (
	// LastWriterWins reads the event, flips the flag and writes it back without a version check.
	LastWriterWins DispatchMode = iota

	// OptimisticDispatch writes back only if the stored record is unchanged since it was read.
	// A lost race surfaces as ErrConcurrencyConflict. Requires a versioned persistence store.
	OptimisticDispatch
)

func (m DispatchMode) String() string {
	switch m {
	case LastWriterWins:
		return "last_writer_wins"
	case OptimisticDispatch:
		return "optimistic"
	default:
		return "unknown"
	}
}
