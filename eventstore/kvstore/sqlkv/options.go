package sqlkv

import (
	"regexp"

	"github.com/AntonStoeckl/kv-eventstore-go/eventstore"
)

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Option defines a functional option for configuring Store.
type Option func(*Store) error

// WithTableName sets the documents table name.
// Only plain lower-case identifiers are accepted, Postgres would fold anything else in the unquoted DDL.
func WithTableName(tableName string) Option {
	return func(s *Store) error {
		if tableName == "" {
			return ErrEmptyTableName
		}

		if !tableNamePattern.MatchString(tableName) {
			return ErrInvalidTableName
		}

		s.tableName = tableName

		return nil
	}
}

// WithLogger sets the logger for the Store.
//
// Debug level: SQL statements with execution timing (development use)
// Error level: failed statements.
func WithLogger(logger eventstore.Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}
