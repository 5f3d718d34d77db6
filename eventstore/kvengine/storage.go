package kvengine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AntonStoeckl/kv-eventstore-go/eventstore"
	"github.com/AntonStoeckl/kv-eventstore-go/eventstore/kvstore"
	"github.com/AntonStoeckl/kv-eventstore-go/eventstore/kvstore/sqlkv"
)

const (
	logMsgOperation            = "eventstore operation: "
	logMsgStoreCall            = "store call: "
	logMsgAddEventsFailed      = "adding events failed"
	logMsgGetEventsFailed      = "getting events failed"
	logMsgGetEventRangeFailed  = "getting event range failed"
	logMsgGetUndispatchedFail  = "getting undispatched events failed"
	logMsgSetDispatchedFailed  = "setting event to dispatched failed"
	logMsgAddSnapshotFailed    = "adding snapshot failed"
	logMsgGetSnapshotFailed    = "getting snapshot failed"
	logMsgDispatchFailed       = "dispatching pending events failed"
	logMsgConcurrencyConflict  = "concurrency conflict detected"
	logMsgConnectFailed        = "connecting to postgres failed"
	logAttrError               = "error"
	logAttrOperation           = "operation"
	logAttrDurationMS          = "duration_ms"
	logAttrRecordCount         = "record_count"
	logAttrStreamID            = "stream_id"
	logAttrEventID             = "event_id"
	logAttrSnapshotID          = "snapshot_id"
	logAttrMinRevision         = "min_revision"
	logAttrMaxRevision         = "max_revision"
	logAttrRevision            = "revision"
	logAttrAmount              = "amount"
	logAttrKind                = "kind"
	logAttrAddress             = "address"
	logAttrDispatchMode        = "dispatch_mode"
	operationAddEvents         = "add_events"
	operationGetEvents         = "get_events"
	operationGetEventRange     = "get_event_range"
	operationGetUndispatched   = "get_undispatched_events"
	operationSetDispatched     = "set_event_to_dispatched"
	operationAddSnapshot       = "add_snapshot"
	operationGetSnapshot       = "get_snapshot"
	operationDispatchPending   = "dispatch_pending"
	storeCallPutMany           = "put_many"
	storeCallPut               = "put"
	storeCallGet               = "get"
	storeCallScanAll           = "scan_all"
	storeCallPutIfVersion      = "put_if_version"
	spanNamePrefix             = "eventstore."
	spanAttrOperation          = "operation"
	spanAttrRecordCount        = "record_count"
	spanAttrDurationMS         = "duration_ms"
	spanAttrErrorType          = "error_type"
	spanAttrStreamID           = "stream_id"
	spanAttrEventID            = "event_id"
	spanAttrDispatchMode       = "dispatch_mode"
	metricOperationDuration    = "eventstore_operation_duration_seconds"
	metricRecordCount          = "eventstore_events_returned"
	metricErrors               = "eventstore_errors_total"
	metricConcurrencyConflicts = "eventstore_concurrency_conflicts_total"
	labelOperation             = "operation"
	labelStatus                = "status"
	labelErrorType             = "error_type"
	labelConflictType          = "conflict_type"
	statusSuccess              = "success"
	statusError                = "error"

	errorTypeCanceled            = "canceled"
	errorTypeTimeout             = "timeout"
	errorTypeConcurrencyConflict = "concurrency_conflict"
	errorTypeNotFound            = "not_found"
	errorTypeDecoding            = "decoding"
	errorTypePersistence         = "persistence"
	errorTypeValidation          = "validation"
	errorTypePublishing          = "publishing"
	errorTypeUnknown             = "unknown"
)

// ErrPublishingEventFailed is returned by DispatchPending when the Publisher rejects an event.
var ErrPublishingEventFailed = errors.New("publishing event failed")

// ErrCollectionNamesCollide is returned when the events and snapshots collection names would produce
// overlapping keys, i.e. they are equal or one of them plus "_" is a prefix of the other.
var ErrCollectionNamesCollide = errors.New("events and snapshots need collection names with disjoint key prefixes")

// Publisher delivers one event to downstream consumers.
type Publisher func(ctx context.Context, event eventstore.Event) error

// Storage is the connected adapter. It exposes the operations of both repositories directly.
type Storage struct {
	*EventRepository
	*SnapshotRepository

	config       eventstore.Config
	ids          eventstore.IDGenerator
	dispatchMode eventstore.DispatchMode
	replicaDSN   string
	obs          *instrumentation
	closeFn      func()
}

// New binds both repositories to the given collaborator.
//
// cfg is merged over eventstore.DefaultConfig, so an effective config as well as a sparse override can be passed.
func New(store kvstore.Store, cfg eventstore.Config, options ...Option) (*Storage, error) {
	if store == nil {
		return nil, eventstore.ErrNilStore
	}

	s, err := newStorage(cfg, options...)
	if err != nil {
		return nil, err
	}

	if err = s.bind(store); err != nil {
		return nil, err
	}

	return s, nil
}

// Connect opens a pgx pool for the Postgres database described by cfg and binds both repositories to
// a sqlkv collaborator on top of it.
//
// The connection is verified with a ping. cfg.ConnectionTimeout bounds both dialing and the ping.
// Any failure, a timeout included, is returned as eventstore.ErrConnectionFailed. Connect does not retry.
func Connect(ctx context.Context, cfg eventstore.Config, options ...Option) (*Storage, error) {
	s, err := newStorage(cfg, options...)
	if err != nil {
		return nil, err
	}

	connectCtx := ctx
	if s.config.ConnectionTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, s.config.ConnectionTimeout)
		defer cancel()
	}

	primary, err := s.openPool(connectCtx, s.config.PostgresDSN())
	if err != nil {
		return nil, err
	}

	storeOptions := []sqlkv.Option{sqlkv.WithLogger(s.obs.logger)}

	var store *sqlkv.Store
	if s.replicaDSN != "" {
		replica, replicaErr := s.openPool(connectCtx, s.replicaDSN)
		if replicaErr != nil {
			primary.Close()
			return nil, replicaErr
		}

		store, err = sqlkv.NewFromPGXPoolWithReplica(primary, replica, storeOptions...)
		s.closeFn = func() {
			replica.Close()
			primary.Close()
		}
	} else {
		store, err = sqlkv.NewFromPGXPool(primary, storeOptions...)
		s.closeFn = primary.Close
	}

	if err != nil {
		s.Close()
		return nil, errors.Join(eventstore.ErrConnectionFailed, err)
	}

	if err = s.bind(store); err != nil {
		s.Close()
		return nil, err
	}

	s.obs.logOperation(ctx, "connect", logAttrAddress, s.config.Address())

	return s, nil
}

func newStorage(cfg eventstore.Config, options ...Option) (*Storage, error) {
	s := &Storage{
		config:       eventstore.DefaultConfig().Merge(cfg),
		ids:          eventstore.UUIDGenerator{},
		dispatchMode: eventstore.LastWriterWins,
		obs:          &instrumentation{},
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Storage) openPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		s.obs.logError(ctx, logMsgConnectFailed, err, logAttrAddress, s.config.Address())
		return nil, errors.Join(eventstore.ErrConnectionFailed, err)
	}

	if s.config.ConnectionTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = s.config.ConnectionTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		s.obs.logError(ctx, logMsgConnectFailed, err, logAttrAddress, s.config.Address())
		return nil, errors.Join(eventstore.ErrConnectionFailed, err)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		s.obs.logError(ctx, logMsgConnectFailed, err, logAttrAddress, s.config.Address())
		return nil, errors.Join(eventstore.ErrConnectionFailed, err)
	}

	s.obs.logStoreCall(ctx, "ping", 0, logAttrAddress, poolConfig.ConnConfig.Host)

	return pool, nil
}

func (s *Storage) bind(store kvstore.Store) error {
	if keyPrefixesOverlap(s.config.EventsCollectionName, s.config.SnapshotsCollectionName) {
		return fmt.Errorf("%w: %q and %q", ErrCollectionNamesCollide,
			s.config.EventsCollectionName, s.config.SnapshotsCollectionName)
	}

	events, err := newEventRepository(store, s.config, s.dispatchMode, s.obs)
	if err != nil {
		return err
	}

	s.EventRepository = events
	s.SnapshotRepository = newSnapshotRepository(store, s.config, s.obs)

	return nil
}

// keyPrefixesOverlap reports whether a key of one collection can equal a key of the other.
func keyPrefixesOverlap(a, b string) bool {
	prefixA, prefixB := a+keySeparator, b+keySeparator

	return strings.HasPrefix(prefixA, prefixB) || strings.HasPrefix(prefixB, prefixA)
}

// Config returns the effective configuration.
func (s *Storage) Config() eventstore.Config {
	return s.config
}

// Events returns the event repository.
func (s *Storage) Events() *EventRepository {
	return s.EventRepository
}

// Snapshots returns the snapshot repository.
func (s *Storage) Snapshots() *SnapshotRepository {
	return s.SnapshotRepository
}

// NewID returns a new unique identifier for commits and snapshots.
func (s *Storage) NewID() string {
	return s.ids.NewID()
}

// Close releases the connection pools opened by Connect. It is a no-op for a Storage built with New.
func (s *Storage) Close() {
	if s.closeFn != nil {
		s.closeFn()
		s.closeFn = nil
	}
}

// DispatchPending replays dispatch for all undispatched events: each one is handed to publish in
// (StreamID, StreamRevision) order and marked dispatched after publish returned without error.
//
// It stops at the first failure and returns the number of events dispatched so far. Events whose
// publish succeeded but whose dispatch flag could not be stored are delivered again on the next call.
func (s *Storage) DispatchPending(ctx context.Context, publish Publisher) (int, error) {
	observer, ctx := s.obs.startOperation(ctx, operationDispatchPending, nil)

	pending, err := s.GetUndispatchedEvents(ctx)
	if err != nil {
		observer.finishError(logMsgDispatchFailed, err)
		return 0, err
	}

	dispatched := 0
	for _, event := range pending {
		if publishErr := publish(ctx, event); publishErr != nil {
			err = errors.Join(ErrPublishingEventFailed, publishErr)
			observer.finishError(logMsgDispatchFailed, err, logAttrEventID, event.ID)
			return dispatched, err
		}

		if err = s.SetEventToDispatched(ctx, event); err != nil {
			observer.finishError(logMsgDispatchFailed, err, logAttrEventID, event.ID)
			return dispatched, err
		}

		dispatched++
	}

	observer.finishSuccess(dispatched)

	return dispatched, nil
}
