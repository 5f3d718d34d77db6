package sqlkv_test

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/kv-eventstore-go/eventstore/kvstore"
)

// runStoreContract exercises the behavior every kvstore.VersionedStore implementation must show.
func runStoreContract(t *testing.T, newStore func(t *testing.T) kvstore.VersionedStore) {
	t.Helper()

	t.Run("get_returns_what_put_wrote", func(t *testing.T) {
		// setup
		ctx := context.Background()
		store := newStore(t)

		// act
		require.NoError(t, store.Put(ctx, "events_c10", kvstore.Record{Kind: "events", Value: []byte(`{"id":"c10"}`)}))
		record, err := store.Get(ctx, "events_c10")

		// assert
		assert.NoError(t, err)
		assert.Equal(t, "events", record.Kind)
		assert.JSONEq(t, `{"id":"c10"}`, string(record.Value))
	})

	t.Run("put_many_writes_batches_beyond_the_bind_parameter_limit", func(t *testing.T) {
		// setup
		ctx := context.Background()
		store := newStore(t)

		// arrange
		const batchSize = 17000
		records := make(map[string]kvstore.Record, batchSize)
		for i := range batchSize {
			id := strconv.Itoa(i)
			records["events_"+id] = kvstore.Record{Kind: "events", Value: []byte(`{"id":"` + id + `"}`)}
		}

		// act
		err := store.PutMany(ctx, records)

		// assert
		require.NoError(t, err)

		scanned, scanErr := store.ScanAll(ctx, "events")
		require.NoError(t, scanErr)
		assert.Len(t, scanned, batchSize)

		last, getErr := store.Get(ctx, "events_16999")
		require.NoError(t, getErr)
		assert.JSONEq(t, `{"id":"16999"}`, string(last.Value))
	})

	t.Run("get_unknown_key_fails_with_key_not_found", func(t *testing.T) {
		// setup
		ctx := context.Background()
		store := newStore(t)

		// act
		_, err := store.Get(ctx, "events_unknown")

		// assert
		assert.ErrorIs(t, err, kvstore.ErrKeyNotFound)
	})

	t.Run("put_overwrites_and_bumps_version", func(t *testing.T) {
		// setup
		ctx := context.Background()
		store := newStore(t)
		require.NoError(t, store.Put(ctx, "events_c10", kvstore.Record{Kind: "events", Value: []byte(`{"v":1}`)}))
		_, firstVersion, err := store.GetVersioned(ctx, "events_c10")
		require.NoError(t, err)

		// act
		require.NoError(t, store.Put(ctx, "events_c10", kvstore.Record{Kind: "events", Value: []byte(`{"v":2}`)}))
		record, secondVersion, err := store.GetVersioned(ctx, "events_c10")

		// assert
		assert.NoError(t, err)
		assert.JSONEq(t, `{"v":2}`, string(record.Value))
		assert.Greater(t, secondVersion, firstVersion)
	})

	t.Run("put_many_writes_all_records", func(t *testing.T) {
		// setup
		ctx := context.Background()
		store := newStore(t)

		// act
		err := store.PutMany(ctx, map[string]kvstore.Record{
			"events_c12":    {Kind: "events", Value: []byte(`{"id":"c12"}`)},
			"events_c10":    {Kind: "events", Value: []byte(`{"id":"c10"}`)},
			"events_c11":    {Kind: "events", Value: []byte(`{"id":"c11"}`)},
			"snapshots_s10": {Kind: "snapshots", Value: []byte(`{"id":"s10"}`)},
		})
		events, eventsErr := store.ScanAll(ctx, "events")
		snapshots, snapshotsErr := store.ScanAll(ctx, "snapshots")

		// assert
		assert.NoError(t, err)
		assert.NoError(t, eventsErr)
		assert.NoError(t, snapshotsErr)
		require.Len(t, events, 3)
		assert.JSONEq(t, `{"id":"c10"}`, string(events[0].Value))
		assert.JSONEq(t, `{"id":"c11"}`, string(events[1].Value))
		assert.JSONEq(t, `{"id":"c12"}`, string(events[2].Value))
		require.Len(t, snapshots, 1)
		assert.Equal(t, "snapshots", snapshots[0].Kind)
	})

	t.Run("put_many_with_no_records_is_a_noop", func(t *testing.T) {
		// setup
		ctx := context.Background()
		store := newStore(t)

		// act
		err := store.PutMany(ctx, map[string]kvstore.Record{})

		// assert
		assert.NoError(t, err)
	})

	t.Run("put_many_rejects_an_empty_key", func(t *testing.T) {
		// setup
		ctx := context.Background()
		store := newStore(t)

		// act
		err := store.PutMany(ctx, map[string]kvstore.Record{"": {Kind: "events", Value: []byte(`{}`)}})

		// assert
		assert.ErrorIs(t, err, kvstore.ErrEmptyKey)
	})

	t.Run("scan_all_of_an_unknown_kind_is_empty", func(t *testing.T) {
		// setup
		ctx := context.Background()
		store := newStore(t)

		// act
		records, err := store.ScanAll(ctx, "events")

		// assert
		assert.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("put_if_version_succeeds_with_current_version", func(t *testing.T) {
		// setup
		ctx := context.Background()
		store := newStore(t)
		require.NoError(t, store.Put(ctx, "events_c10", kvstore.Record{Kind: "events", Value: []byte(`{"dispatched":false}`)}))
		_, version, err := store.GetVersioned(ctx, "events_c10")
		require.NoError(t, err)

		// act
		putErr := store.PutIfVersion(ctx, "events_c10", kvstore.Record{Kind: "events", Value: []byte(`{"dispatched":true}`)}, version)
		record, newVersion, getErr := store.GetVersioned(ctx, "events_c10")

		// assert
		assert.NoError(t, putErr)
		assert.NoError(t, getErr)
		assert.JSONEq(t, `{"dispatched":true}`, string(record.Value))
		assert.Equal(t, version+1, newVersion)
	})

	t.Run("put_if_version_fails_with_stale_version", func(t *testing.T) {
		// setup
		ctx := context.Background()
		store := newStore(t)
		require.NoError(t, store.Put(ctx, "events_c10", kvstore.Record{Kind: "events", Value: []byte(`{"v":1}`)}))
		_, staleVersion, err := store.GetVersioned(ctx, "events_c10")
		require.NoError(t, err)
		require.NoError(t, store.Put(ctx, "events_c10", kvstore.Record{Kind: "events", Value: []byte(`{"v":2}`)}))

		// act
		putErr := store.PutIfVersion(ctx, "events_c10", kvstore.Record{Kind: "events", Value: []byte(`{"v":3}`)}, staleVersion)
		record, getErr := store.Get(ctx, "events_c10")

		// assert
		assert.ErrorIs(t, putErr, kvstore.ErrVersionConflict)
		assert.NoError(t, getErr)
		assert.JSONEq(t, `{"v":2}`, string(record.Value))
	})

	t.Run("put_if_version_fails_for_unknown_key", func(t *testing.T) {
		// setup
		ctx := context.Background()
		store := newStore(t)

		// act
		err := store.PutIfVersion(ctx, "events_unknown", kvstore.Record{Kind: "events", Value: []byte(`{}`)}, 1)

		// assert
		assert.ErrorIs(t, err, kvstore.ErrKeyNotFound)
	})
}
