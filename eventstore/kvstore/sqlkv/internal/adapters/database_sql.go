package adapters

import (
	"context"
	"database/sql"
	"errors"
)

// SQLHandle is implemented by *sql.DB and *sqlx.DB.
type SQLHandle interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// DatabaseSQL runs statements on database/sql handles.
type DatabaseSQL struct {
	primary SQLHandle
	replica SQLHandle
}

// NewDatabaseSQL returns a Conn on the primary handle. replica may be nil.
func NewDatabaseSQL(primary SQLHandle, replica SQLHandle) *DatabaseSQL {
	return &DatabaseSQL{primary: primary, replica: replica}
}

func (c *DatabaseSQL) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := readTarget(ctx, c.primary, c.replica).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return rows, nil
}

func (c *DatabaseSQL) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := c.primary.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

func (c *DatabaseSQL) ExecInTx(ctx context.Context, statements []Statement) error {
	tx, err := c.primary.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	for _, statement := range statements {
		if _, execErr := tx.ExecContext(ctx, statement.Query, statement.Args...); execErr != nil {
			return errors.Join(execErr, tx.Rollback())
		}
	}

	return tx.Commit()
}

var (
	_ Conn = (*DatabaseSQL)(nil)
	_ Conn = (*PGX)(nil)
)
