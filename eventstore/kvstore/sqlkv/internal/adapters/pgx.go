package adapters

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGX runs statements on pgx pools.
type PGX struct {
	primary *pgxpool.Pool
	replica *pgxpool.Pool
}

// NewPGX returns a Conn on the primary pool. replica may be nil.
func NewPGX(primary *pgxpool.Pool, replica *pgxpool.Pool) *PGX {
	return &PGX{primary: primary, replica: replica}
}

func (c *PGX) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := readTarget(ctx, c.primary, c.replica).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return pgxRows{Rows: rows}, nil
}

func (c *PGX) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := c.primary.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}

func (c *PGX) ExecInTx(ctx context.Context, statements []Statement) error {
	tx, err := c.primary.Begin(ctx)
	if err != nil {
		return err
	}

	for _, statement := range statements {
		if _, execErr := tx.Exec(ctx, statement.Query, statement.Args...); execErr != nil {
			return errors.Join(execErr, tx.Rollback(ctx))
		}
	}

	return tx.Commit(ctx)
}

// pgxRows reports the deferred error of pgx.Rows on Close.
type pgxRows struct {
	pgx.Rows
}

func (r pgxRows) Close() error {
	r.Rows.Close()

	return r.Rows.Err()
}
