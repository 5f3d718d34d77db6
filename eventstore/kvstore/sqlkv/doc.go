// Package sqlkv provides a SQL implementation of the kvstore.VersionedStore collaborator.
//
// All records live in one documents table keyed by doc_key, tagged with a kind, and carrying a
// version counter used for conditional writes. Postgres (through pgx, database/sql with lib/pq,
// or sqlx) and embedded SQLite (modernc.org/sqlite) are supported.
//
// Usage examples:
//
//	// Postgres through a pgx pool
//	pool, _ := pgxpool.New(ctx, dsn)
//	store, _ := sqlkv.NewFromPGXPool(pool)
//	_ = store.EnsureSchema(ctx)
//
//	// Embedded SQLite
//	db, _ := sql.Open("sqlite", "file:eventstore.db")
//	store, _ := sqlkv.NewSQLite(db, sqlkv.WithTableName("documents"))
//
//	err := store.PutMany(ctx, map[string]kvstore.Record{"events_c10": {Kind: "events", Value: body}})
package sqlkv
