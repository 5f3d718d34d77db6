package kvstore

import (
	"context"
	"errors"
)

var ErrKeyNotFound = errors.New("key not found")
var ErrVersionConflict = errors.New("record version changed")
var ErrEmptyKey = errors.New("empty key supplied")

// Record is one stored value, tagged with the kind (view) it belongs to.
type Record struct {
	Kind  string
	Value []byte
}

// Version is a per-key counter incremented by every write.
type Version = int64

// Store is the key/value surface consumed by the event and snapshot repositories.
type Store interface {
	// Put writes a single record, overwriting an existing one with the same key.
	Put(ctx context.Context, key string, record Record) error

	// PutMany writes all records in one round trip. A failure is reported once for the whole batch,
	// the batch may have been applied partially.
	PutMany(ctx context.Context, records map[string]Record) error

	// Get returns the record stored under key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) (Record, error)

	// ScanAll returns every record tagged with kind.
	ScanAll(ctx context.Context, kind string) ([]Record, error)
}

// VersionedStore is implemented by stores which support optimistic concurrency.
type VersionedStore interface {
	Store

	// GetVersioned returns the record and its current version, or ErrKeyNotFound.
	GetVersioned(ctx context.Context, key string) (Record, Version, error)

	// PutIfVersion overwrites an existing record only if its version still equals expected,
	// otherwise it fails with ErrVersionConflict.
	PutIfVersion(ctx context.Context, key string, record Record, expected Version) error
}
