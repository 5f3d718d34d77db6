package sqlkv

import (
	"fmt"

	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // goqu dialect registration
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // goqu dialect registration
)

const (
	dialectPostgres = "postgres"
	dialectSQLite   = "sqlite3"
)

// dialect carries the few statement parts goqu cannot render for both databases.
type dialect struct {
	name     string
	bodyType string

	// maxBindParams is the number of bind parameters one statement may carry.
	maxBindParams int
}

var (
	postgresDialect = dialect{name: dialectPostgres, bodyType: "JSONB", maxBindParams: 65535}
	sqliteDialect   = dialect{name: dialectSQLite, bodyType: "TEXT", maxBindParams: 32766}
)

// dialectForDriver maps a database/sql driver name to the dialect it speaks.
func dialectForDriver(driverName string) (dialect, error) {
	switch driverName {
	case "postgres", "pgx":
		return postgresDialect, nil
	case "sqlite", "sqlite3":
		return sqliteDialect, nil
	default:
		return dialect{}, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driverName)
	}
}

// rowsPerInsert is how many documents fit into one multi-row insert.
func (d dialect) rowsPerInsert() int {
	return d.maxBindParams / columnsPerRow
}

// upsertClause makes an INSERT overwrite an existing row and bump its version.
// Both Postgres and SQLite (>= 3.24) accept this form.
func (d dialect) upsertClause(tableName string) string {
	return fmt.Sprintf(
		" ON CONFLICT (%s) DO UPDATE SET %s = excluded.%s, %s = excluded.%s, %s = %s.%s + 1",
		colKey,
		colKind, colKind,
		colBody, colBody,
		colVersion, tableName, colVersion,
	)
}

func (d dialect) schemaStatements(tableName string) []string {
	return []string{
		fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s (%s TEXT PRIMARY KEY, %s TEXT NOT NULL, %s %s NOT NULL, %s BIGINT NOT NULL DEFAULT 1)",
			tableName, colKey, colKind, colBody, d.bodyType, colVersion,
		),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_%s_idx ON %s (%s)", tableName, colKind, tableName, colKind),
	}
}
