// Package kvengine implements the event store on top of a kvstore.Store collaborator.
//
// Every query is a two-stage pipeline: the whole collection is scanned and decoded, then filtered and
// sorted in memory by pure functions. Events and snapshots share the collaborator and are kept apart by
// their kind (the configured collection name) and by key prefixes of the form "<collection>_<id>".
//
// Construction:
//   - New binds the repositories to any kvstore.Store, e.g. kvstore.NewMemoryStore() or a sqlkv.Store
//   - Connect opens a pgx pool from an eventstore.Config and uses a sqlkv.Store on top of it
//
// Observability is optional and configured through options:
//
//	storage, err := kvengine.New(store, eventstore.DefaultConfig(),
//		kvengine.WithLogger(slog.Default()),
//		kvengine.WithMetrics(metricsCollector),
//		kvengine.WithTracing(tracingCollector),
//		kvengine.WithDispatchMode(eventstore.OptimisticDispatch),
//	)
package kvengine
