package kvengine

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"time"

	"github.com/AntonStoeckl/kv-eventstore-go/eventstore"
	"github.com/AntonStoeckl/kv-eventstore-go/eventstore/kvstore"
)

// EventRepository persists events and answers all event queries.
// It is safe for concurrent use if the underlying collaborator is.
type EventRepository struct {
	store             kvstore.Store
	versioned         kvstore.VersionedStore
	kind              string
	strongConsistency bool
	dispatchMode      eventstore.DispatchMode
	obs               *instrumentation
}

func newEventRepository(
	store kvstore.Store,
	cfg eventstore.Config,
	mode eventstore.DispatchMode,
	obs *instrumentation,
) (*EventRepository, error) {
	if store == nil {
		return nil, eventstore.ErrNilStore
	}

	if cfg.EventsCollectionName == "" {
		return nil, eventstore.ErrEmptyCollectionName
	}

	r := &EventRepository{
		store:             store,
		kind:              cfg.EventsCollectionName,
		strongConsistency: cfg.QueryOptions.StrongConsistency,
		dispatchMode:      mode,
		obs:               obs,
	}

	if versioned, ok := store.(kvstore.VersionedStore); ok {
		r.versioned = versioned
	}

	if mode == eventstore.OptimisticDispatch && r.versioned == nil {
		return nil, eventstore.ErrVersionedStoreRequired
	}

	return r, nil
}

// AddEvents writes all events with one PutMany and returns them carrying their derived IDs.
//
// A failing batch is reported once. It may have been applied partially, retrying it is safe
// because every event is written under its derived ID.
func (r *EventRepository) AddEvents(ctx context.Context, events eventstore.Events) (eventstore.Events, error) {
	observer, ctx := r.obs.startOperation(ctx, operationAddEvents, map[string]string{
		spanAttrRecordCount: strconv.Itoa(len(events)),
	})

	if len(events) == 0 {
		observer.finishError(logMsgAddEventsFailed, eventstore.ErrEmptyEventBatch)
		return nil, eventstore.ErrEmptyEventBatch
	}

	stored := make(eventstore.Events, 0, len(events))
	records := make(map[string]kvstore.Record, len(events))

	for _, event := range events {
		if err := event.Validate(); err != nil {
			observer.finishError(logMsgAddEventsFailed, err, logAttrStreamID, event.StreamID)
			return nil, err
		}

		event.ID = eventstore.EventID(event.CommitID, event.CommitSequence)

		record, err := encodeEvent(r.kind, event)
		if err != nil {
			err = errors.Join(eventstore.ErrAppendingEventsFailed, err)
			observer.finishError(logMsgAddEventsFailed, err, logAttrEventID, event.ID)
			return nil, err
		}

		records[recordKey(r.kind, event.ID)] = record
		stored = append(stored, event)
	}

	start := time.Now()
	err := r.store.PutMany(ctx, records)
	r.obs.logStoreCall(ctx, storeCallPutMany, time.Since(start), logAttrKind, r.kind, logAttrRecordCount, len(records))

	if err != nil {
		err = errors.Join(eventstore.ErrAppendingEventsFailed, err)
		observer.finishError(logMsgAddEventsFailed, err)
		return nil, err
	}

	observer.finishSuccess(len(stored))

	return stored, nil
}

// GetEvents returns the events of streamID with minRev <= StreamRevision < maxRev, ascending by revision.
// maxRev == eventstore.UnboundedRevision returns everything from minRev on.
// An empty result is not an error.
func (r *EventRepository) GetEvents(
	ctx context.Context,
	streamID string,
	minRev int,
	maxRev int,
) (eventstore.Events, error) {
	observer, ctx := r.obs.startOperation(ctx, operationGetEvents, map[string]string{spanAttrStreamID: streamID})
	logArgs := []any{logAttrStreamID, streamID, logAttrMinRevision, minRev, logAttrMaxRevision, maxRev}

	all, err := r.fetchAll(ctx)
	if err != nil {
		observer.finishError(logMsgGetEventsFailed, err, logArgs...)
		return nil, err
	}

	events := filterStreamWindow(all, streamID, minRev, maxRev)
	sortByStreamRevision(events)

	observer.finishSuccess(len(events), logArgs...)

	return events, nil
}

// GetEventRange returns up to amount events committed at or after the anchor, in commit order.
//
// The anchor is the earliest event, ordered by (CommitStamp, StreamID, StreamRevision), whose payload
// satisfies every predicate of match. Events of the anchor's own commit are excluded. If no event
// matches, eventstore.ErrAnchorEventNotFound is returned.
func (r *EventRepository) GetEventRange(
	ctx context.Context,
	match eventstore.Match,
	amount int,
) (eventstore.Events, error) {
	observer, ctx := r.obs.startOperation(ctx, operationGetEventRange, nil)

	if amount < 0 {
		observer.finishError(logMsgGetEventRangeFailed, eventstore.ErrInvalidAmount, logAttrAmount, amount)
		return nil, eventstore.ErrInvalidAmount
	}

	all, err := r.fetchAll(ctx)
	if err != nil {
		observer.finishError(logMsgGetEventRangeFailed, err, logAttrAmount, amount)
		return nil, err
	}

	anchor, found := findAnchor(all, match)
	if !found {
		observer.finishError(logMsgGetEventRangeFailed, eventstore.ErrAnchorEventNotFound, logAttrAmount, amount)
		return nil, eventstore.ErrAnchorEventNotFound
	}

	events := filterAfterAnchor(all, anchor)
	sortByCommitOrder(events)
	events = takeFirst(events, amount)

	observer.finishSuccess(len(events), logAttrAmount, amount, logAttrEventID, anchor.ID)

	return events, nil
}

// GetUndispatchedEvents returns all events not yet dispatched, ordered by (StreamID, StreamRevision).
func (r *EventRepository) GetUndispatchedEvents(ctx context.Context) (eventstore.Events, error) {
	observer, ctx := r.obs.startOperation(ctx, operationGetUndispatched, nil)

	all, err := r.fetchAll(ctx)
	if err != nil {
		observer.finishError(logMsgGetUndispatchedFail, err)
		return nil, err
	}

	events := filterUndispatched(all)
	sortByStreamAndRevision(events)

	observer.finishSuccess(len(events))

	return events, nil
}

// SetEventToDispatched marks the referenced event as dispatched.
//
// The stored event is read with strong consistency, flagged, and written back. With
// eventstore.LastWriterWins concurrent calls race harmlessly. With eventstore.OptimisticDispatch the
// write only succeeds if the record is unchanged since the read, otherwise eventstore.ErrConcurrencyConflict
// is returned. An already dispatched event is left untouched.
func (r *EventRepository) SetEventToDispatched(ctx context.Context, ref eventstore.EventIdentifier) error {
	id := eventIDOf(ref)

	observer, ctx := r.obs.startOperation(ctx, operationSetDispatched, map[string]string{
		spanAttrEventID:      id,
		spanAttrDispatchMode: r.dispatchMode.String(),
	})
	logArgs := []any{logAttrEventID, id, logAttrDispatchMode, r.dispatchMode.String()}

	if id == "" {
		err := errors.Join(eventstore.ErrInvalidEvent, errors.New("empty event id"))
		observer.finishError(logMsgSetDispatchedFailed, err, logArgs...)
		return err
	}

	var err error
	if r.dispatchMode == eventstore.OptimisticDispatch {
		err = r.setDispatchedOptimistic(ctx, id)
	} else {
		err = r.setDispatchedLastWriterWins(ctx, id)
	}

	if err != nil {
		observer.finishError(logMsgSetDispatchedFailed, err, logArgs...)
		return err
	}

	observer.finishSuccess(1, logArgs...)

	return nil
}

func (r *EventRepository) setDispatchedLastWriterWins(ctx context.Context, id string) error {
	key := recordKey(r.kind, id)

	start := time.Now()
	record, err := r.store.Get(eventstore.WithStrongConsistency(ctx), key)
	r.obs.logStoreCall(ctx, storeCallGet, time.Since(start), logAttrEventID, id)

	if err != nil {
		return r.dispatchReadError(err)
	}

	updated, changed, err := r.flagDispatched(record)
	if err != nil || !changed {
		return err
	}

	start = time.Now()
	err = r.store.Put(ctx, key, updated)
	r.obs.logStoreCall(ctx, storeCallPut, time.Since(start), logAttrEventID, id)

	if err != nil {
		return errors.Join(eventstore.ErrUpdatingDispatchStateFailed, err)
	}

	return nil
}

func (r *EventRepository) setDispatchedOptimistic(ctx context.Context, id string) error {
	key := recordKey(r.kind, id)

	start := time.Now()
	record, version, err := r.versioned.GetVersioned(eventstore.WithStrongConsistency(ctx), key)
	r.obs.logStoreCall(ctx, storeCallGet, time.Since(start), logAttrEventID, id)

	if err != nil {
		return r.dispatchReadError(err)
	}

	updated, changed, err := r.flagDispatched(record)
	if err != nil || !changed {
		return err
	}

	start = time.Now()
	err = r.versioned.PutIfVersion(ctx, key, updated, version)
	r.obs.logStoreCall(ctx, storeCallPutIfVersion, time.Since(start), logAttrEventID, id)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, kvstore.ErrVersionConflict):
		return errors.Join(eventstore.ErrConcurrencyConflict, err)
	case errors.Is(err, kvstore.ErrKeyNotFound):
		return errors.Join(eventstore.ErrEventNotFound, err)
	default:
		return errors.Join(eventstore.ErrUpdatingDispatchStateFailed, err)
	}
}

// flagDispatched returns the re-encoded record with Dispatched set, and false if it was set already.
func (r *EventRepository) flagDispatched(record kvstore.Record) (kvstore.Record, bool, error) {
	event, err := decodeEvent(record)
	if err != nil {
		return kvstore.Record{}, false, err
	}

	if event.Dispatched {
		return record, false, nil
	}

	event.Dispatched = true

	updated, err := encodeEvent(r.kind, event)
	if err != nil {
		return kvstore.Record{}, false, errors.Join(eventstore.ErrUpdatingDispatchStateFailed, err)
	}

	return updated, true, nil
}

func (r *EventRepository) dispatchReadError(err error) error {
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return errors.Join(eventstore.ErrEventNotFound, err)
	}

	return errors.Join(eventstore.ErrUpdatingDispatchStateFailed, err)
}

// fetchAll is the first query stage: scan the events collection and decode every record.
func (r *EventRepository) fetchAll(ctx context.Context) (eventstore.Events, error) {
	scanCtx := scanContext(ctx, r.strongConsistency)

	start := time.Now()
	records, err := r.store.ScanAll(scanCtx, r.kind)
	r.obs.logStoreCall(ctx, storeCallScanAll, time.Since(start), logAttrKind, r.kind, logAttrRecordCount, len(records))

	if err != nil {
		return nil, errors.Join(eventstore.ErrQueryingEventsFailed, err)
	}

	events := make(eventstore.Events, 0, len(records))
	for _, record := range records {
		event, decodeErr := decodeEvent(record)
		if decodeErr != nil {
			return nil, decodeErr
		}

		events = append(events, event)
	}

	return events, nil
}

// eventIDOf returns "" for a nil ref, typed nil pointers included.
func eventIDOf(ref eventstore.EventIdentifier) string {
	if ref == nil {
		return ""
	}

	if v := reflect.ValueOf(ref); v.Kind() == reflect.Pointer && v.IsNil() {
		return ""
	}

	return ref.EventID()
}

// scanContext applies the configured read consistency unless the caller has chosen one explicitly.
func scanContext(ctx context.Context, strong bool) context.Context {
	if ctx.Value(eventstore.ConsistencyLevelKey) != nil {
		return ctx
	}

	if strong {
		return eventstore.WithStrongConsistency(ctx)
	}

	return eventstore.WithEventualConsistency(ctx)
}
