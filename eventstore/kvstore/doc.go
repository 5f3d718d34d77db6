// Package kvstore defines the persistence collaborator contract the event store is built on.
//
// A Store is a plain key/value surface: Put, PutMany, Get, and ScanAll, where ScanAll returns every record
// tagged with a kind, with no filtering, pagination, or ordering guarantee. Implementations which can
// update a record conditionally additionally implement VersionedStore.
//
// MemoryStore is a complete in-process implementation, useful for tests and embedded use.
// Package sqlkv provides SQL-backed implementations (Postgres and SQLite).
package kvstore
