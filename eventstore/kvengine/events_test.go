package kvengine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/kv-eventstore-go/eventstore"
	"github.com/AntonStoeckl/kv-eventstore-go/eventstore/kvengine"
	"github.com/AntonStoeckl/kv-eventstore-go/eventstore/kvstore"
	. "github.com/AntonStoeckl/kv-eventstore-go/testutil/kvengine/helper" //nolint:revive
)

func newMemoryStorage(t *testing.T, options ...kvengine.Option) (*kvengine.Storage, *kvstore.MemoryStore) {
	t.Helper()

	store := kvstore.NewMemoryStore()
	storage, err := kvengine.New(store, eventstore.DefaultConfig(), options...)
	require.NoError(t, err)

	return storage, store
}

func Test_AddEvents_GetEvents_Scenario(t *testing.T) {
	// setup
	ctx := context.Background()
	storage, _ := newMemoryStorage(t)

	// arrange
	_, err := storage.AddEvents(ctx, eventstore.Events{
		FixtureEvent("s1", 0, "c1", 0, 100, `{"x":1}`),
		FixtureEvent("s1", 1, "c1", 1, 100, `{"x":2}`),
	})
	require.NoError(t, err)

	// act
	all, allErr := storage.GetEvents(ctx, "s1", 0, eventstore.UnboundedRevision)
	fromOne, fromOneErr := storage.GetEvents(ctx, "s1", 1, eventstore.UnboundedRevision)

	// assert
	require.NoError(t, allErr)
	require.NoError(t, fromOneErr)

	require.Len(t, all, 2)
	assert.Equal(t, 0, all[0].StreamRevision)
	assert.Equal(t, 1, all[1].StreamRevision)
	assert.JSONEq(t, `{"x":1}`, string(all[0].Payload))
	assert.JSONEq(t, `{"x":2}`, string(all[1].Payload))

	require.Len(t, fromOne, 1)
	assert.Equal(t, 1, fromOne[0].StreamRevision)
}

func Test_AddEvents_ShouldReturnEventsWithDerivedIDs(t *testing.T) {
	// setup
	ctx := context.Background()
	storage, store := newMemoryStorage(t)

	// act
	stored, err := storage.AddEvents(ctx, eventstore.Events{
		FixtureEvent("s1", 0, "commit-a", 0, 100, `{}`),
		FixtureEvent("s1", 1, "commit-a", 1, 100, `{}`),
	})

	// assert
	require.NoError(t, err)
	assert.Equal(t, []string{"commit-a0", "commit-a1"}, EventIDs(stored))

	_, getErr := store.Get(ctx, "events_commit-a0")
	assert.NoError(t, getErr, "events are stored under <collection>_<id>")
	assert.Equal(t, 2, store.Len())
}

func Test_AddEvents_ShouldRoundTripAllFields(t *testing.T) {
	// setup
	ctx := context.Background()
	storage, _ := newMemoryStorage(t)
	input := FixtureEvent("s1", 4, "c9", 2, 1_700_000_000, `{"nested":{"list":[1,2,3]}}`)

	// act
	_, err := storage.AddEvents(ctx, eventstore.Events{input})
	require.NoError(t, err)
	events, getErr := storage.GetEvents(ctx, "s1", 0, eventstore.UnboundedRevision)

	// assert
	require.NoError(t, getErr)
	require.Len(t, events, 1)
	assert.Equal(t, "c92", events[0].ID)
	assert.Equal(t, "s1", events[0].StreamID)
	assert.Equal(t, 4, events[0].StreamRevision)
	assert.Equal(t, "c9", events[0].CommitID)
	assert.Equal(t, 2, events[0].CommitSequence)
	assert.True(t, input.CommitStamp.Equal(events[0].CommitStamp))
	assert.JSONEq(t, `{"nested":{"list":[1,2,3]}}`, string(events[0].Payload))
	assert.False(t, events[0].Dispatched)
}

func Test_AddEvents_ShouldFail_WithInvalidInput(t *testing.T) {
	testCases := []struct {
		name     string
		events   eventstore.Events
		expected error
	}{
		{name: "empty_batch", events: eventstore.Events{}, expected: eventstore.ErrEmptyEventBatch},
		{name: "nil_batch", events: nil, expected: eventstore.ErrEmptyEventBatch},
		{name: "empty_stream_id", events: eventstore.Events{FixtureEvent("", 0, "c1", 0, 100, `{}`)}, expected: eventstore.ErrInvalidEvent},
		{name: "empty_commit_id", events: eventstore.Events{FixtureEvent("s1", 0, "", 0, 100, `{}`)}, expected: eventstore.ErrInvalidEvent},
		{name: "negative_revision", events: eventstore.Events{FixtureEvent("s1", -1, "c1", 0, 100, `{}`)}, expected: eventstore.ErrInvalidEvent},
		{name: "invalid_payload", events: eventstore.Events{FixtureEvent("s1", 0, "c1", 0, 100, `{"x":`)}, expected: eventstore.ErrInvalidEvent},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// setup
			storage, store := newMemoryStorage(t)

			// act
			_, err := storage.AddEvents(context.Background(), tc.events)

			// assert
			assert.ErrorIs(t, err, tc.expected)
			assert.Equal(t, 0, store.Len(), "nothing is written for a rejected batch")
		})
	}
}

func Test_AddEvents_ShouldFail_WhenTheStoreFails(t *testing.T) {
	// setup
	ctx := context.Background()
	store := NewFailingStore(kvstore.NewMemoryStore())
	store.Set(func(s *FailingStore) { s.FailPutMany = true })
	storage, err := kvengine.New(store, eventstore.DefaultConfig())
	require.NoError(t, err)

	// act
	_, addErr := storage.AddEvents(ctx, eventstore.Events{FixtureEvent("s1", 0, "c1", 0, 100, `{}`)})

	// assert
	assert.ErrorIs(t, addErr, eventstore.ErrAppendingEventsFailed)
	assert.ErrorIs(t, addErr, eventstore.ErrPersistenceFailed)
	assert.ErrorIs(t, addErr, ErrInjected)
}

func Test_AddEvents_ShouldOverwrite_WhenRetriedWithTheSameIDs(t *testing.T) {
	// setup
	ctx := context.Background()
	storage, store := newMemoryStorage(t)
	batch := eventstore.Events{
		FixtureEvent("s1", 0, "c1", 0, 100, `{}`),
		FixtureEvent("s1", 1, "c1", 1, 100, `{}`),
	}

	// act
	_, firstErr := storage.AddEvents(ctx, batch)
	_, retryErr := storage.AddEvents(ctx, batch)
	events, getErr := storage.GetEvents(ctx, "s1", 0, eventstore.UnboundedRevision)

	// assert
	assert.NoError(t, firstErr)
	assert.NoError(t, retryErr)
	assert.NoError(t, getErr)
	assert.Len(t, events, 2)
	assert.Equal(t, 2, store.Len())
}

func Test_GetEvents_ShouldRespectTheRevisionWindow(t *testing.T) {
	// setup
	ctx := context.Background()
	storage, _ := newMemoryStorage(t)

	// arrange
	_, err := storage.AddEvents(ctx, eventstore.Events{
		FixtureEvent("s1", 3, "c4", 0, 400, `{}`),
		FixtureEvent("s1", 0, "c1", 0, 100, `{}`),
		FixtureEvent("s1", 2, "c3", 0, 300, `{}`),
		FixtureEvent("s1", 1, "c2", 0, 200, `{}`),
		FixtureEvent("s2", 0, "c5", 0, 500, `{}`),
	})
	require.NoError(t, err)

	testCases := []struct {
		name     string
		minRev   int
		maxRev   int
		expected []string
	}{
		{name: "all", minRev: 0, maxRev: eventstore.UnboundedRevision, expected: []string{"c10", "c20", "c30", "c40"}},
		{name: "exclusive_upper_bound", minRev: 0, maxRev: 2, expected: []string{"c10", "c20"}},
		{name: "inclusive_lower_bound", minRev: 2, maxRev: eventstore.UnboundedRevision, expected: []string{"c30", "c40"}},
		{name: "middle", minRev: 1, maxRev: 3, expected: []string{"c20", "c30"}},
		{name: "beyond_the_end", minRev: 10, maxRev: eventstore.UnboundedRevision, expected: []string{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// act
			events, getErr := storage.GetEvents(ctx, "s1", tc.minRev, tc.maxRev)

			// assert
			require.NoError(t, getErr)
			assert.Equal(t, tc.expected, EventIDs(events))

			for _, e := range events {
				assert.GreaterOrEqual(t, e.StreamRevision, tc.minRev)
				if tc.maxRev != eventstore.UnboundedRevision {
					assert.Less(t, e.StreamRevision, tc.maxRev)
				}
			}
		})
	}
}

func Test_GetEvents_ShouldReturnEmpty_NotAnError_ForUnknownStream(t *testing.T) {
	// setup
	storage, _ := newMemoryStorage(t)

	// act
	events, err := storage.GetEvents(context.Background(), "unknown", 0, eventstore.UnboundedRevision)

	// assert
	assert.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func Test_GetEvents_ShouldFail_WhenTheStoreFails(t *testing.T) {
	// setup
	store := NewFailingStore(kvstore.NewMemoryStore())
	store.Set(func(s *FailingStore) { s.FailScanAll = true })
	storage, err := kvengine.New(store, eventstore.DefaultConfig())
	require.NoError(t, err)

	// act
	_, getErr := storage.GetEvents(context.Background(), "s1", 0, eventstore.UnboundedRevision)

	// assert
	assert.ErrorIs(t, getErr, eventstore.ErrQueryingEventsFailed)
	assert.ErrorIs(t, getErr, eventstore.ErrPersistenceFailed)
}

func Test_GetEvents_ShouldFail_ForUndecodableRecords(t *testing.T) {
	// setup
	ctx := context.Background()
	storage, store := newMemoryStorage(t)
	require.NoError(t, store.Put(ctx, "events_broken", kvstore.Record{Kind: "events", Value: []byte(`not json`)}))

	// act
	_, err := storage.GetEvents(ctx, "s1", 0, eventstore.UnboundedRevision)

	// assert
	assert.ErrorIs(t, err, eventstore.ErrDecodingRecordFailed)
}

func Test_GetEvents_ShouldUseTheConfiguredCollection(t *testing.T) {
	// setup
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	orders, err := kvengine.New(store, eventstore.Config{EventsCollectionName: "order_events", SnapshotsCollectionName: "order_snapshots"})
	require.NoError(t, err)
	defaults, err := kvengine.New(store, eventstore.Config{})
	require.NoError(t, err)

	// arrange
	_, err = orders.AddEvents(ctx, eventstore.Events{FixtureEvent("s1", 0, "c1", 0, 100, `{}`)})
	require.NoError(t, err)

	// act
	fromOrders, ordersErr := orders.GetEvents(ctx, "s1", 0, eventstore.UnboundedRevision)
	fromDefaults, defaultsErr := defaults.GetEvents(ctx, "s1", 0, eventstore.UnboundedRevision)
	_, getErr := store.Get(ctx, "order_events_c10")

	// assert
	assert.NoError(t, ordersErr)
	assert.NoError(t, defaultsErr)
	assert.Len(t, fromOrders, 1)
	assert.Empty(t, fromDefaults)
	assert.NoError(t, getErr)
}

func Test_GetEventRange(t *testing.T) {
	// setup
	ctx := context.Background()
	storage, _ := newMemoryStorage(t)

	// arrange
	_, err := storage.AddEvents(ctx, eventstore.Events{
		FixtureEvent("s1", 0, "c1", 0, 100, `{"type":"early"}`),
		FixtureEvent("s1", 1, "c2", 0, 200, `{"type":"anchor","order":{"id":"o-7"}}`),
		FixtureEvent("s1", 2, "c2", 1, 200, `{"type":"same-commit"}`),
		FixtureEvent("s2", 0, "c3", 0, 200, `{"type":"concurrent"}`),
		FixtureEvent("s2", 1, "c4", 0, 300, `{"type":"later"}`),
		FixtureEvent("s1", 3, "c5", 0, 400, `{"type":"latest"}`),
	})
	require.NoError(t, err)

	testCases := []struct {
		name     string
		match    eventstore.Match
		amount   int
		expected []string
	}{
		{
			name:     "everything_after_the_anchor",
			match:    eventstore.MatchAllOf(eventstore.P("type", "anchor")),
			amount:   10,
			expected: []string{"c30", "c40", "c50"},
		},
		{
			name:     "truncated_to_amount",
			match:    eventstore.MatchAllOf(eventstore.P("type", "anchor")),
			amount:   2,
			expected: []string{"c30", "c40"},
		},
		{
			name:     "amount_zero",
			match:    eventstore.MatchAllOf(eventstore.P("type", "anchor")),
			amount:   0,
			expected: []string{},
		},
		{
			name:     "nested_dot_path",
			match:    eventstore.MatchAllOf(eventstore.P("order.id", "o-7")),
			amount:   10,
			expected: []string{"c30", "c40", "c50"},
		},
		{
			name:     "from_map",
			match:    eventstore.MatchFromMap(map[string]any{"type": "later"}),
			amount:   10,
			expected: []string{"c50"},
		},
		{
			name:     "anchor_at_the_end",
			match:    eventstore.MatchAllOf(eventstore.P("type", "latest")),
			amount:   10,
			expected: []string{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// act
			events, rangeErr := storage.GetEventRange(ctx, tc.match, tc.amount)

			// assert
			require.NoError(t, rangeErr)
			assert.Equal(t, tc.expected, EventIDs(events))
		})
	}
}

func Test_GetEventRange_ShouldFail_WithoutAnchor(t *testing.T) {
	// setup
	ctx := context.Background()
	storage, _ := newMemoryStorage(t)
	_, err := storage.AddEvents(ctx, eventstore.Events{FixtureEvent("s1", 0, "c1", 0, 100, `{"type":"a"}`)})
	require.NoError(t, err)

	// act
	_, noMatchErr := storage.GetEventRange(ctx, eventstore.MatchAllOf(eventstore.P("type", "b")), 10)
	_, emptyStoreErr := kvengineOnEmptyStore(t).GetEventRange(ctx, eventstore.Match{}, 10)

	// assert
	assert.ErrorIs(t, noMatchErr, eventstore.ErrAnchorEventNotFound)
	assert.ErrorIs(t, noMatchErr, eventstore.ErrNotFound)
	assert.ErrorIs(t, emptyStoreErr, eventstore.ErrAnchorEventNotFound)
}

func Test_GetEventRange_ShouldFail_WithNegativeAmount(t *testing.T) {
	// setup
	storage, _ := newMemoryStorage(t)

	// act
	_, err := storage.GetEventRange(context.Background(), eventstore.Match{}, -1)

	// assert
	assert.ErrorIs(t, err, eventstore.ErrInvalidAmount)
}

func Test_GetUndispatchedEvents_ShouldBeSortedAndIdempotent(t *testing.T) {
	// setup
	ctx := context.Background()
	storage, _ := newMemoryStorage(t)

	// arrange
	_, err := storage.AddEvents(ctx, eventstore.Events{
		FixtureEvent("s2", 0, "c3", 0, 300, `{}`),
		FixtureEvent("s1", 1, "c2", 0, 200, `{}`),
		FixtureEvent("s1", 0, "c1", 0, 100, `{}`),
	})
	require.NoError(t, err)

	// act
	first, firstErr := storage.GetUndispatchedEvents(ctx)
	second, secondErr := storage.GetUndispatchedEvents(ctx)

	// assert
	require.NoError(t, firstErr)
	require.NoError(t, secondErr)
	assert.Equal(t, []string{"c10", "c20", "c30"}, EventIDs(first))
	assert.Equal(t, first, second)
}

func Test_GetUndispatchedEvents_ShouldReturnEmpty_OnEmptyStore(t *testing.T) {
	// act
	events, err := kvengineOnEmptyStore(t).GetUndispatchedEvents(context.Background())

	// assert
	assert.NoError(t, err)
	assert.Empty(t, events)
}

func Test_Scans_ShouldUseTheConfiguredConsistency(t *testing.T) {
	testCases := []struct {
		name     string
		strong   bool
		ctx      func(context.Context) context.Context
		expected eventstore.ConsistencyLevel
	}{
		{name: "default_is_eventual", strong: false, ctx: func(ctx context.Context) context.Context { return ctx }, expected: eventstore.EventualConsistency},
		{name: "strong_by_config", strong: true, ctx: func(ctx context.Context) context.Context { return ctx }, expected: eventstore.StrongConsistency},
		{name: "caller_choice_wins", strong: false, ctx: eventstore.WithStrongConsistency, expected: eventstore.StrongConsistency},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// setup
			store := NewConsistencySpyStore(kvstore.NewMemoryStore())
			storage, err := kvengine.New(store, eventstore.Config{QueryOptions: eventstore.QueryOptions{StrongConsistency: tc.strong}})
			require.NoError(t, err)

			// act
			_, getErr := storage.GetEvents(tc.ctx(context.Background()), "s1", 0, eventstore.UnboundedRevision)
			_, _, snapErr := storage.GetSnapshot(tc.ctx(context.Background()), "s1", eventstore.UnboundedRevision)

			// assert
			require.NoError(t, getErr)
			require.NoError(t, snapErr)
			calls := store.Calls()
			require.Len(t, calls, 2)
			for _, call := range calls {
				assert.Equal(t, "ScanAll", call.Method)
				assert.Equal(t, tc.expected, call.Level)
			}
		})
	}
}

func kvengineOnEmptyStore(t *testing.T) *kvengine.Storage {
	t.Helper()

	storage, _ := newMemoryStorage(t)

	return storage
}
