package helper

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/AntonStoeckl/kv-eventstore-go/eventstore"
	"github.com/AntonStoeckl/kv-eventstore-go/eventstore/kvstore"
)

// FixtureEvent builds an undispatched event. The commit stamp is stamp seconds after the Unix epoch, in UTC.
func FixtureEvent(
	streamID string,
	revision int,
	commitID string,
	sequence int,
	stamp int64,
	payload string,
) eventstore.Event {
	var raw json.RawMessage
	if payload != "" {
		raw = json.RawMessage(payload)
	}

	return eventstore.Event{
		StreamID:       streamID,
		StreamRevision: revision,
		CommitID:       commitID,
		CommitSequence: sequence,
		CommitStamp:    time.Unix(stamp, 0).UTC(),
		Payload:        raw,
	}
}

// FixtureSnapshot builds a snapshot with the given revision.
func FixtureSnapshot(snapshotID string, streamID string, revision int, data string) eventstore.Snapshot {
	return eventstore.Snapshot{
		SnapshotID: snapshotID,
		StreamID:   streamID,
		Revision:   revision,
		Data:       json.RawMessage(data),
	}
}

// EventIDs extracts the IDs of events, preserving their order.
func EventIDs(events eventstore.Events) []string {
	ids := make([]string, 0, len(events))
	for _, event := range events {
		ids = append(ids, event.ID)
	}

	return ids
}

// ErrInjected is the failure FailingStore returns.
var ErrInjected = errors.New("injected store failure")

// FailingStore wraps a kvstore.VersionedStore and fails the selected calls with ErrInjected.
type FailingStore struct {
	kvstore.VersionedStore

	mu               sync.Mutex
	FailPut          bool
	FailPutMany      bool
	FailGet          bool
	FailScanAll      bool
	FailPutIfVersion bool

	// BeforePutIfVersion runs before every PutIfVersion, e.g. to interleave a concurrent writer.
	BeforePutIfVersion func(ctx context.Context, key string)
}

// NewFailingStore wraps store. No call fails until a Fail* flag is set.
func NewFailingStore(store kvstore.VersionedStore) *FailingStore {
	return &FailingStore{VersionedStore: store}
}

// Set applies change under the store's lock, so flags can be flipped while the store is in use.
func (s *FailingStore) Set(change func(s *FailingStore)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	change(s)
}

func (s *FailingStore) fails(flag func(s *FailingStore) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return flag(s)
}

// Put implements kvstore.Store.
func (s *FailingStore) Put(ctx context.Context, key string, record kvstore.Record) error {
	if s.fails(func(s *FailingStore) bool { return s.FailPut }) {
		return ErrInjected
	}

	return s.VersionedStore.Put(ctx, key, record)
}

// PutMany implements kvstore.Store.
func (s *FailingStore) PutMany(ctx context.Context, records map[string]kvstore.Record) error {
	if s.fails(func(s *FailingStore) bool { return s.FailPutMany }) {
		return ErrInjected
	}

	return s.VersionedStore.PutMany(ctx, records)
}

// Get implements kvstore.Store.
func (s *FailingStore) Get(ctx context.Context, key string) (kvstore.Record, error) {
	if s.fails(func(s *FailingStore) bool { return s.FailGet }) {
		return kvstore.Record{}, ErrInjected
	}

	return s.VersionedStore.Get(ctx, key)
}

// GetVersioned implements kvstore.VersionedStore.
func (s *FailingStore) GetVersioned(ctx context.Context, key string) (kvstore.Record, kvstore.Version, error) {
	if s.fails(func(s *FailingStore) bool { return s.FailGet }) {
		return kvstore.Record{}, 0, ErrInjected
	}

	return s.VersionedStore.GetVersioned(ctx, key)
}

// ScanAll implements kvstore.Store.
func (s *FailingStore) ScanAll(ctx context.Context, kind string) ([]kvstore.Record, error) {
	if s.fails(func(s *FailingStore) bool { return s.FailScanAll }) {
		return nil, ErrInjected
	}

	return s.VersionedStore.ScanAll(ctx, kind)
}

// PutIfVersion implements kvstore.VersionedStore.
func (s *FailingStore) PutIfVersion(ctx context.Context, key string, record kvstore.Record, expected kvstore.Version) error {
	if s.BeforePutIfVersion != nil {
		s.BeforePutIfVersion(ctx, key)
	}

	if s.fails(func(s *FailingStore) bool { return s.FailPutIfVersion }) {
		return ErrInjected
	}

	return s.VersionedStore.PutIfVersion(ctx, key, record, expected)
}

// PlainStore hides the VersionedStore methods of a store, leaving only the kvstore.Store surface.
type PlainStore struct {
	store kvstore.Store
}

// NewPlainStore wraps store.
func NewPlainStore(store kvstore.Store) PlainStore {
	return PlainStore{store: store}
}

// Put implements kvstore.Store.
func (s PlainStore) Put(ctx context.Context, key string, record kvstore.Record) error {
	return s.store.Put(ctx, key, record)
}

// PutMany implements kvstore.Store.
func (s PlainStore) PutMany(ctx context.Context, records map[string]kvstore.Record) error {
	return s.store.PutMany(ctx, records)
}

// Get implements kvstore.Store.
func (s PlainStore) Get(ctx context.Context, key string) (kvstore.Record, error) {
	return s.store.Get(ctx, key)
}

// ScanAll implements kvstore.Store.
func (s PlainStore) ScanAll(ctx context.Context, kind string) ([]kvstore.Record, error) {
	return s.store.ScanAll(ctx, kind)
}

var _ kvstore.VersionedStore = (*FailingStore)(nil)
var _ kvstore.Store = PlainStore{}
