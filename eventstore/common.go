package eventstore

import (
	"errors"
	"fmt"
)

// UnboundedRevision is the maxRev sentinel meaning "no upper revision bound".
const UnboundedRevision = -1

// ErrConnectionFailed is returned when the adapter cannot reach its persistence collaborator,
// including connect timeouts. It is fatal to the adapter instance.
var ErrConnectionFailed = errors.New("connecting to the persistence collaborator failed")

// ErrPersistenceFailed is the root of all read/write failures against the persistence collaborator.
var ErrPersistenceFailed = errors.New("persistence operation failed")

var (
	ErrAppendingEventsFailed       = fmt.Errorf("%w: appending events failed", ErrPersistenceFailed)
	ErrQueryingEventsFailed        = fmt.Errorf("%w: querying events failed", ErrPersistenceFailed)
	ErrSavingSnapshotFailed        = fmt.Errorf("%w: saving snapshot failed", ErrPersistenceFailed)
	ErrLoadingSnapshotFailed       = fmt.Errorf("%w: loading snapshot failed", ErrPersistenceFailed)
	ErrUpdatingDispatchStateFailed = fmt.Errorf("%w: updating dispatch state failed", ErrPersistenceFailed)
	ErrDecodingRecordFailed        = fmt.Errorf("%w: decoding stored record failed", ErrPersistenceFailed)
)

// ErrNotFound is returned by operations which require a referenced record to exist.
// Queries that simply match nothing return an empty result instead.
var ErrNotFound = errors.New("not found")

var (
	ErrEventNotFound       = fmt.Errorf("%w: event", ErrNotFound)
	ErrAnchorEventNotFound = fmt.Errorf("%w: no event matches the range anchor", ErrNotFound)
)

var ErrEmptyEventBatch = errors.New("at least one event must be supplied")
var ErrInvalidEvent = errors.New("event is not valid")
var ErrInvalidSnapshot = errors.New("snapshot is not valid")
var ErrInvalidAmount = errors.New("amount must not be negative")
var ErrNilStore = errors.New("nil persistence store supplied")
var ErrEmptyCollectionName = errors.New("empty collection name supplied")
var ErrConcurrencyConflict = errors.New("concurrency error, the record was changed concurrently")
var ErrVersionedStoreRequired = errors.New("optimistic dispatch requires a versioned store")
