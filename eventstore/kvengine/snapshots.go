package kvengine

import (
	"context"
	"errors"
	"time"

	"github.com/AntonStoeckl/kv-eventstore-go/eventstore"
	"github.com/AntonStoeckl/kv-eventstore-go/eventstore/kvstore"
)

// SnapshotRepository persists snapshots and resolves the one to start a replay from.
type SnapshotRepository struct {
	store             kvstore.Store
	kind              string
	strongConsistency bool
	obs               *instrumentation
}

func newSnapshotRepository(store kvstore.Store, cfg eventstore.Config, obs *instrumentation) *SnapshotRepository {
	return &SnapshotRepository{
		store:             store,
		kind:              cfg.SnapshotsCollectionName,
		strongConsistency: cfg.QueryOptions.StrongConsistency,
		obs:               obs,
	}
}

// AddSnapshot writes the snapshot under its SnapshotID, overwriting a snapshot with the same ID.
func (r *SnapshotRepository) AddSnapshot(ctx context.Context, snapshot eventstore.Snapshot) error {
	observer, ctx := r.obs.startOperation(ctx, operationAddSnapshot, map[string]string{
		spanAttrStreamID: snapshot.StreamID,
	})
	logArgs := []any{logAttrSnapshotID, snapshot.SnapshotID, logAttrStreamID, snapshot.StreamID}

	if err := snapshot.Validate(); err != nil {
		observer.finishError(logMsgAddSnapshotFailed, err, logArgs...)
		return err
	}

	record, err := encodeSnapshot(r.kind, snapshot)
	if err != nil {
		err = errors.Join(eventstore.ErrSavingSnapshotFailed, err)
		observer.finishError(logMsgAddSnapshotFailed, err, logArgs...)
		return err
	}

	start := time.Now()
	err = r.store.Put(ctx, recordKey(r.kind, snapshot.SnapshotID), record)
	r.obs.logStoreCall(ctx, storeCallPut, time.Since(start), logAttrSnapshotID, snapshot.SnapshotID)

	if err != nil {
		err = errors.Join(eventstore.ErrSavingSnapshotFailed, err)
		observer.finishError(logMsgAddSnapshotFailed, err, logArgs...)
		return err
	}

	observer.finishSuccess(1, logArgs...)

	return nil
}

// GetSnapshot returns the snapshot of streamID with the highest revision, limited to Revision <= maxRev
// when maxRev > -1. found is false, without an error, when no snapshot qualifies.
func (r *SnapshotRepository) GetSnapshot(
	ctx context.Context,
	streamID string,
	maxRev int,
) (snapshot eventstore.Snapshot, found bool, err error) {
	observer, ctx := r.obs.startOperation(ctx, operationGetSnapshot, map[string]string{
		spanAttrStreamID: streamID,
	})
	logArgs := []any{logAttrStreamID, streamID, logAttrMaxRevision, maxRev}

	all, err := r.fetchAll(ctx)
	if err != nil {
		observer.finishError(logMsgGetSnapshotFailed, err, logArgs...)
		return eventstore.Snapshot{}, false, err
	}

	snapshot, found = selectSnapshot(all, streamID, maxRev)
	if !found {
		observer.finishSuccess(0, logArgs...)
		return eventstore.Snapshot{}, false, nil
	}

	observer.finishSuccess(1, append(logArgs, logAttrSnapshotID, snapshot.SnapshotID, logAttrRevision, snapshot.Revision)...)

	return snapshot, true, nil
}

func (r *SnapshotRepository) fetchAll(ctx context.Context) ([]eventstore.Snapshot, error) {
	scanCtx := scanContext(ctx, r.strongConsistency)

	start := time.Now()
	records, err := r.store.ScanAll(scanCtx, r.kind)
	r.obs.logStoreCall(ctx, storeCallScanAll, time.Since(start), logAttrKind, r.kind, logAttrRecordCount, len(records))

	if err != nil {
		return nil, errors.Join(eventstore.ErrLoadingSnapshotFailed, err)
	}

	snapshots := make([]eventstore.Snapshot, 0, len(records))
	for _, record := range records {
		snapshot, decodeErr := decodeSnapshot(record)
		if decodeErr != nil {
			return nil, decodeErr
		}

		snapshots = append(snapshots, snapshot)
	}

	return snapshots, nil
}
