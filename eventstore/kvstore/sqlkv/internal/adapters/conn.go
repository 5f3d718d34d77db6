package adapters

import (
	"context"

	"github.com/AntonStoeckl/kv-eventstore-go/eventstore"
)

// Conn runs the statements of the SQL key/value store.
type Conn interface {
	// Query runs on the replica if there is one and ctx asks for eventual consistency.
	Query(ctx context.Context, query string, args ...any) (Rows, error)

	// Exec always runs on the primary and reports the number of affected rows.
	Exec(ctx context.Context, query string, args ...any) (int64, error)

	// ExecInTx runs all statements in one transaction on the primary.
	// The transaction is rolled back when any statement fails.
	ExecInTx(ctx context.Context, statements []Statement) error
}

// Statement is one SQL statement with its bind arguments.
type Statement struct {
	Query string
	Args  []any
}

// Rows is the cursor returned by Conn.Query. *sql.Rows satisfies it as is.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// readTarget picks the handle a query runs on.
func readTarget[T comparable](ctx context.Context, primary, replica T) T {
	var none T
	if replica == none {
		return primary
	}

	if eventstore.GetConsistencyLevel(ctx) == eventstore.EventualConsistency {
		return replica
	}

	return primary
}
