// Package eventstore provides the core types of an event store persisted on a generic key/value collaborator.
//
// The package defines the data model (Event, Snapshot), payload predicates used for range queries (Match),
// the adapter configuration with its merge policy (Config), identifier generation, the error taxonomy,
// consistency levels, and dependency-free observability interfaces.
//
// Key types:
//   - Event: one committed change inside a stream, addressed by ID = CommitID + CommitSequence
//   - Snapshot: a materialized stream state as of a revision
//   - Match: payload predicates addressed by dot-separated paths
//   - Config: recognized adapter options, merged over DefaultConfig
//
// Error taxonomy:
//   - ErrConnectionFailed: the collaborator could not be reached (including timeouts)
//   - ErrPersistenceFailed: any read or write failure against the collaborator
//   - ErrNotFound: a referenced record does not exist
//
// Queries which simply match nothing return empty results, never ErrNotFound.
//
// Common usage pattern:
//
//	cfg := eventstore.BuildConfig(eventstore.Config{Host: "db.internal", Port: 5432})
//	storage, err := kvengine.Connect(ctx, cfg)
//	if err != nil {
//		// handle error
//	}
//	defer storage.Close()
//
//	commitID := storage.NewID()
//	_, err = storage.AddEvents(ctx, eventstore.Events{
//		{StreamID: "order-1", StreamRevision: 0, CommitID: commitID, CommitSequence: 0, CommitStamp: now, Payload: payload},
//	})
//
//	events, err := storage.GetEvents(ctx, "order-1", 0, eventstore.UnboundedRevision)
package eventstore
