package sqlkv

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"slices"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/AntonStoeckl/kv-eventstore-go/eventstore"
	"github.com/AntonStoeckl/kv-eventstore-go/eventstore/kvstore"
	"github.com/AntonStoeckl/kv-eventstore-go/eventstore/kvstore/sqlkv/internal/adapters"
)

const (
	defaultTableName          = "eventstore_documents"
	logMsgBuildQueryFailed    = "failed to build sql statement"
	logMsgDBQueryFailed       = "database query execution failed"
	logMsgDBExecFailed        = "database statement execution failed"
	logMsgCloseRowsFailed     = "failed to close database rows"
	logMsgScanRowFailed       = "failed to scan database row"
	logMsgSQLExecuted         = "executed sql for: "
	logAttrError              = "error"
	logAttrQuery              = "query"
	logAttrDurationMS         = "duration_ms"
	logAttrRecordCount        = "record_count"
	logAttrStatementCount     = "statement_count"
	logActionPut              = "put"
	logActionPutBatch         = "put_batch"
	logActionGet              = "get"
	logActionScan             = "scan"
	logActionConditionalWrite = "conditional_write"
	logActionSchema           = "schema"
	colKey                    = "doc_key"
	colKind                   = "kind"
	colBody                   = "body"
	colVersion                = "version"
	columnsPerRow             = 4
	initialVersion            = kvstore.Version(1)
)

var (
	ErrNilDatabaseConnection = errors.New("nil database connection supplied")
	ErrEmptyTableName        = errors.New("empty table name supplied")
	ErrInvalidTableName      = errors.New("table name must be a plain lower-case sql identifier")
	ErrUnsupportedDriver     = errors.New("unsupported database driver")
	ErrBuildingQueryFailed   = errors.New("building sql statement failed")
	ErrQueryFailed           = errors.New("executing sql query failed")
	ErrExecFailed            = errors.New("executing sql statement failed")
	ErrScanningDBRowFailed   = errors.New("scanning db row failed")
)

// Store is a kvstore.VersionedStore persisting all records in one SQL table.
type Store struct {
	db        adapters.Conn
	dialect   dialect
	tableName string
	logger    eventstore.Logger
}

// NewFromPGXPool creates a new Postgres Store using a pgx Pool with optional configuration.
func NewFromPGXPool(db *pgxpool.Pool, options ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewPGX(db, nil), postgresDialect, options...)
}

// NewFromPGXPoolWithReplica creates a new Postgres Store which serves eventually consistent reads
// (see eventstore.WithEventualConsistency) from the replica pool.
func NewFromPGXPoolWithReplica(db *pgxpool.Pool, replica *pgxpool.Pool, options ...Option) (*Store, error) {
	if db == nil || replica == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewPGX(db, replica), postgresDialect, options...)
}

// NewFromSQLDB creates a new Postgres Store using a sql.DB (e.g. opened with lib/pq) with optional configuration.
func NewFromSQLDB(db *sql.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewDatabaseSQL(db, nil), postgresDialect, options...)
}

// NewFromSQLDBWithReplica is NewFromSQLDB with eventually consistent reads served by the replica.
func NewFromSQLDBWithReplica(db *sql.DB, replica *sql.DB, options ...Option) (*Store, error) {
	if db == nil || replica == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewDatabaseSQL(db, replica), postgresDialect, options...)
}

// NewFromSQLX creates a new Store using a sqlx.DB. The SQL dialect follows the sqlx driver name.
func NewFromSQLX(db *sqlx.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	d, err := dialectForDriver(db.DriverName())
	if err != nil {
		return nil, err
	}

	return newStore(adapters.NewDatabaseSQL(db, nil), d, options...)
}

// NewSQLite creates a new Store on a SQLite database opened through database/sql,
// typically with the modernc.org/sqlite driver ("sqlite").
//
// For ":memory:" databases the caller must limit the pool to one connection,
// every connection would otherwise see its own empty database.
func NewSQLite(db *sql.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewDatabaseSQL(db, nil), sqliteDialect, options...)
}

func newStore(db adapters.Conn, d dialect, options ...Option) (*Store, error) {
	s := &Store{
		db:        db,
		dialect:   d,
		tableName: defaultTableName,
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// TableName returns the name of the documents table.
func (s *Store) TableName() string {
	return s.tableName
}

// EnsureSchema creates the documents table and its kind index if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, statement := range s.dialect.schemaStatements(s.tableName) {
		if _, err := s.exec(ctx, logActionSchema, statement); err != nil {
			return err
		}
	}

	return nil
}

// Put writes a single record, overwriting an existing one.
func (s *Store) Put(ctx context.Context, key string, record kvstore.Record) error {
	return s.PutMany(ctx, map[string]kvstore.Record{key: record})
}

// PutMany writes all records with a single multi-row upsert statement.
// Batches beyond the bind parameter limit of the database are split into several
// statements which run in one transaction, so the batch is still written all or nothing.
func (s *Store) PutMany(ctx context.Context, records map[string]kvstore.Record) error {
	if len(records) == 0 {
		return nil
	}

	keys := make([]string, 0, len(records))
	for key := range records {
		if key == "" {
			return kvstore.ErrEmptyKey
		}

		keys = append(keys, key)
	}

	slices.Sort(keys)

	statements := make([]adapters.Statement, 0, 1)
	for chunk := range slices.Chunk(keys, s.dialect.rowsPerInsert()) {
		statement, err := s.buildUpsert(chunk, records)
		if err != nil {
			return err
		}

		statements = append(statements, statement)
	}

	if len(statements) == 1 {
		_, err := s.exec(ctx, logActionPut, statements[0].Query, statements[0].Args...)
		return err
	}

	return s.execInTx(ctx, logActionPutBatch, statements)
}

func (s *Store) buildUpsert(keys []string, records map[string]kvstore.Record) (adapters.Statement, error) {
	rows := make([]any, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, goqu.Record{
			colKey:     key,
			colKind:    records[key].Kind,
			colBody:    string(records[key].Value),
			colVersion: initialVersion,
		})
	}

	sqlQuery, args, toSQLErr := s.builder().
		Insert(s.tableName).
		Prepared(true).
		Rows(rows...).
		ToSQL()
	if toSQLErr != nil {
		s.logError(logMsgBuildQueryFailed, toSQLErr, logAttrRecordCount, len(keys))
		return adapters.Statement{}, errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	return adapters.Statement{Query: sqlQuery + s.dialect.upsertClause(s.tableName), Args: args}, nil
}

// Get returns the record stored under key.
func (s *Store) Get(ctx context.Context, key string) (kvstore.Record, error) {
	record, _, err := s.GetVersioned(ctx, key)

	return record, err
}

// GetVersioned returns the record stored under key together with its version.
func (s *Store) GetVersioned(ctx context.Context, key string) (kvstore.Record, kvstore.Version, error) {
	sqlQuery, args, toSQLErr := s.builder().
		From(s.tableName).
		Prepared(true).
		Select(colKind, colBody, colVersion).
		Where(goqu.C(colKey).Eq(key)).
		ToSQL()
	if toSQLErr != nil {
		s.logError(logMsgBuildQueryFailed, toSQLErr)
		return kvstore.Record{}, 0, errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	rows, queryErr := s.query(ctx, logActionGet, sqlQuery, args...)
	if queryErr != nil {
		return kvstore.Record{}, 0, queryErr
	}
	defer s.closeRows(rows)

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			s.logError(logMsgScanRowFailed, err)
			return kvstore.Record{}, 0, errors.Join(ErrScanningDBRowFailed, err)
		}

		return kvstore.Record{}, 0, kvstore.ErrKeyNotFound
	}

	var record kvstore.Record
	var version kvstore.Version

	if err := rows.Scan(&record.Kind, &record.Value, &version); err != nil {
		s.logError(logMsgScanRowFailed, err)
		return kvstore.Record{}, 0, errors.Join(ErrScanningDBRowFailed, err)
	}

	return record, version, nil
}

// PutIfVersion overwrites the record under key if its stored version still equals expected.
func (s *Store) PutIfVersion(ctx context.Context, key string, record kvstore.Record, expected kvstore.Version) error {
	sqlQuery, args, toSQLErr := s.builder().
		Update(s.tableName).
		Prepared(true).
		Set(goqu.Record{
			colKind:    record.Kind,
			colBody:    string(record.Value),
			colVersion: goqu.L(colVersion + " + 1"),
		}).
		Where(
			goqu.C(colKey).Eq(key),
			goqu.C(colVersion).Eq(expected),
		).
		ToSQL()
	if toSQLErr != nil {
		s.logError(logMsgBuildQueryFailed, toSQLErr)
		return errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	rowsAffected, execErr := s.exec(ctx, logActionConditionalWrite, sqlQuery, args...)
	if execErr != nil {
		return execErr
	}

	if rowsAffected > 0 {
		return nil
	}

	// nothing updated: either the key is gone or the version moved on
	if _, _, getErr := s.GetVersioned(ctx, key); getErr != nil {
		return getErr
	}

	return kvstore.ErrVersionConflict
}

// ScanAll returns all records of the given kind, ordered by key.
func (s *Store) ScanAll(ctx context.Context, kind string) ([]kvstore.Record, error) {
	sqlQuery, args, toSQLErr := s.builder().
		From(s.tableName).
		Prepared(true).
		Select(colBody).
		Where(goqu.C(colKind).Eq(kind)).
		Order(goqu.C(colKey).Asc()).
		ToSQL()
	if toSQLErr != nil {
		s.logError(logMsgBuildQueryFailed, toSQLErr)
		return nil, errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	rows, queryErr := s.query(ctx, logActionScan, sqlQuery, args...)
	if queryErr != nil {
		return nil, queryErr
	}
	defer s.closeRows(rows)

	records := make([]kvstore.Record, 0)

	for rows.Next() {
		record := kvstore.Record{Kind: kind}

		if err := rows.Scan(&record.Value); err != nil {
			s.logError(logMsgScanRowFailed, err)
			return nil, errors.Join(ErrScanningDBRowFailed, err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		s.logError(logMsgScanRowFailed, err)
		return nil, errors.Join(ErrScanningDBRowFailed, err)
	}

	return records, nil
}

func (s *Store) builder() goqu.DialectWrapper {
	return goqu.Dialect(s.dialect.name)
}

// query executes the SQL query and logs it with timing information.
func (s *Store) query(ctx context.Context, action string, sqlQuery string, args ...any) (adapters.Rows, error) {
	start := time.Now()
	rows, queryErr := s.db.Query(ctx, sqlQuery, args...)
	s.logQueryWithDuration(sqlQuery, action, time.Since(start))

	if queryErr != nil {
		s.logError(logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		return nil, errors.Join(ErrQueryFailed, queryErr)
	}

	return rows, nil
}

// exec executes the SQL statement and logs it with timing information.
func (s *Store) exec(ctx context.Context, action string, sqlQuery string, args ...any) (int64, error) {
	start := time.Now()
	rowsAffected, execErr := s.db.Exec(ctx, sqlQuery, args...)
	s.logQueryWithDuration(sqlQuery, action, time.Since(start))

	if execErr != nil {
		s.logError(logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)
		return 0, errors.Join(ErrExecFailed, execErr)
	}

	return rowsAffected, nil
}

// execInTx executes the statements in one transaction and logs the batch with timing information.
func (s *Store) execInTx(ctx context.Context, action string, statements []adapters.Statement) error {
	start := time.Now()
	execErr := s.db.ExecInTx(ctx, statements)
	duration := time.Since(start)

	if s.logger != nil {
		s.logger.Debug(logMsgSQLExecuted+action, logAttrDurationMS, toMilliseconds(duration),
			logAttrStatementCount, len(statements))
	}

	if execErr != nil {
		s.logError(logMsgDBExecFailed, execErr, logAttrStatementCount, len(statements))
		return errors.Join(ErrExecFailed, execErr)
	}

	return nil
}

// closeRows safely closes database rows and logs any errors.
func (s *Store) closeRows(rows adapters.Rows) {
	if closeErr := rows.Close(); closeErr != nil {
		if s.logger != nil {
			s.logger.Warn(logMsgCloseRowsFailed, logAttrError, closeErr.Error())
		}
	}
}

// logQueryWithDuration logs SQL statements with execution time at debug level if the logger is configured.
func (s *Store) logQueryWithDuration(sqlQuery string, action string, duration time.Duration) {
	if s.logger != nil {
		s.logger.Debug(logMsgSQLExecuted+action, logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

// logError logs error information at the error level if the logger is configured.
func (s *Store) logError(message string, err error, args ...any) {
	if s.logger != nil {
		allArgs := []any{logAttrError, err.Error()}
		allArgs = append(allArgs, args...)
		s.logger.Error(message, allArgs...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

var _ kvstore.VersionedStore = (*Store)(nil)
