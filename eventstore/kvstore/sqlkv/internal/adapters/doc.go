// Package adapters hides the differences between the supported database libraries
// behind the small Conn interface the SQL key/value store runs its statements on.
//
// pgx pools and database/sql handles (including sqlx, lib/pq and modernc SQLite) are supported.
// Both can be paired with a read replica which then serves eventually consistent reads.
package adapters
