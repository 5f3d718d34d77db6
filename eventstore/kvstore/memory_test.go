package kvstore_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/kv-eventstore-go/eventstore/kvstore"
)

func Test_MemoryStore_Put_Get(t *testing.T) {
	// setup
	ctx := context.Background()
	store := kvstore.NewMemoryStore()

	// act
	require.NoError(t, store.Put(ctx, "events_c10", kvstore.Record{Kind: "events", Value: []byte(`{"id":"c10"}`)}))
	record, version, err := store.GetVersioned(ctx, "events_c10")

	// assert
	assert.NoError(t, err)
	assert.Equal(t, "events", record.Kind)
	assert.JSONEq(t, `{"id":"c10"}`, string(record.Value))
	assert.Equal(t, kvstore.Version(1), version)
}

func Test_MemoryStore_Get_ShouldFail_ForUnknownKey(t *testing.T) {
	// setup
	store := kvstore.NewMemoryStore()

	// act
	_, err := store.Get(context.Background(), "events_unknown")

	// assert
	assert.ErrorIs(t, err, kvstore.ErrKeyNotFound)
}

func Test_MemoryStore_Put_ShouldFail_WithEmptyKey(t *testing.T) {
	// setup
	ctx := context.Background()
	store := kvstore.NewMemoryStore()

	// act
	putErr := store.Put(ctx, "", kvstore.Record{Kind: "events"})
	putManyErr := store.PutMany(ctx, map[string]kvstore.Record{
		"events_c10": {Kind: "events"},
		"":           {Kind: "events"},
	})

	// assert
	assert.ErrorIs(t, putErr, kvstore.ErrEmptyKey)
	assert.ErrorIs(t, putManyErr, kvstore.ErrEmptyKey)
	assert.Equal(t, 0, store.Len(), "a rejected batch must not be applied partially")
}

func Test_MemoryStore_ShouldCopyValues(t *testing.T) {
	// setup
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	value := []byte(`{"id":"c10"}`)

	// act
	require.NoError(t, store.Put(ctx, "events_c10", kvstore.Record{Kind: "events", Value: value}))
	value[2] = 'X'

	record, err := store.Get(ctx, "events_c10")
	require.NoError(t, err)
	record.Value[2] = 'Y'

	again, err := store.Get(ctx, "events_c10")

	// assert
	assert.NoError(t, err)
	assert.JSONEq(t, `{"id":"c10"}`, string(again.Value))
}

func Test_MemoryStore_ScanAll_ShouldReturnRecordsOfKind_InKeyOrder(t *testing.T) {
	// setup
	ctx := context.Background()
	store := kvstore.NewMemoryStore()

	// arrange
	require.NoError(t, store.PutMany(ctx, map[string]kvstore.Record{
		"events_c2":    {Kind: "events", Value: []byte(`2`)},
		"events_c1":    {Kind: "events", Value: []byte(`1`)},
		"snapshots_s1": {Kind: "snapshots", Value: []byte(`{}`)},
		"events_c3":    {Kind: "events", Value: []byte(`3`)},
	}))

	// act
	records, err := store.ScanAll(ctx, "events")

	// assert
	assert.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "1", string(records[0].Value))
	assert.Equal(t, "2", string(records[1].Value))
	assert.Equal(t, "3", string(records[2].Value))
}

func Test_MemoryStore_PutIfVersion(t *testing.T) {
	testCases := []struct {
		name     string
		key      string
		expected kvstore.Version
		wantErr  error
	}{
		{name: "current_version", key: "events_c10", expected: 2, wantErr: nil},
		{name: "stale_version", key: "events_c10", expected: 1, wantErr: kvstore.ErrVersionConflict},
		{name: "unknown_key", key: "events_c99", expected: 1, wantErr: kvstore.ErrKeyNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// setup
			ctx := context.Background()
			store := kvstore.NewMemoryStore()
			require.NoError(t, store.Put(ctx, "events_c10", kvstore.Record{Kind: "events", Value: []byte(`1`)}))
			require.NoError(t, store.Put(ctx, "events_c10", kvstore.Record{Kind: "events", Value: []byte(`2`)}))

			// act
			err := store.PutIfVersion(ctx, tc.key, kvstore.Record{Kind: "events", Value: []byte(`3`)}, tc.expected)

			// assert
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}

			assert.NoError(t, err)
			record, version, getErr := store.GetVersioned(ctx, tc.key)
			assert.NoError(t, getErr)
			assert.Equal(t, "3", string(record.Value))
			assert.Equal(t, kvstore.Version(3), version)
		})
	}
}

func Test_MemoryStore_PutIfVersion_ShouldLetExactlyOneConcurrentWriterWin(t *testing.T) {
	// setup
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "events_c10", kvstore.Record{Kind: "events", Value: []byte(`0`)}))

	const writers = 20
	var wg sync.WaitGroup
	results := make(chan error, writers)

	// act
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- store.PutIfVersion(ctx, "events_c10", kvstore.Record{Kind: "events", Value: []byte(fmt.Sprint(i))}, 1)
		}()
	}

	wg.Wait()
	close(results)

	// assert
	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, kvstore.ErrVersionConflict)
	}

	assert.Equal(t, 1, succeeded)
}

func Test_MemoryStore_ShouldFail_WithCanceledContext(t *testing.T) {
	// setup
	store := kvstore.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// act
	putErr := store.Put(ctx, "events_c10", kvstore.Record{Kind: "events"})
	_, scanErr := store.ScanAll(ctx, "events")

	// assert
	assert.ErrorIs(t, putErr, context.Canceled)
	assert.ErrorIs(t, scanErr, context.Canceled)
}
