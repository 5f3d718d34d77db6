package helper

import (
	"context"
	"sync"

	"github.com/AntonStoeckl/kv-eventstore-go/eventstore"
	"github.com/AntonStoeckl/kv-eventstore-go/eventstore/kvstore"
)

// ConsistencyCall records the consistency level a read was issued with.
type ConsistencyCall struct {
	Method string
	Level  eventstore.ConsistencyLevel
}

// ConsistencySpyStore wraps a kvstore.VersionedStore and records the consistency level of every read.
type ConsistencySpyStore struct {
	kvstore.VersionedStore

	mu    sync.Mutex
	calls []ConsistencyCall
}

// NewConsistencySpyStore wraps store.
func NewConsistencySpyStore(store kvstore.VersionedStore) *ConsistencySpyStore {
	return &ConsistencySpyStore{VersionedStore: store}
}

func (s *ConsistencySpyStore) record(ctx context.Context, method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, ConsistencyCall{Method: method, Level: eventstore.GetConsistencyLevel(ctx)})
}

// Get implements kvstore.Store.
func (s *ConsistencySpyStore) Get(ctx context.Context, key string) (kvstore.Record, error) {
	s.record(ctx, "Get")
	return s.VersionedStore.Get(ctx, key)
}

// GetVersioned implements kvstore.VersionedStore.
func (s *ConsistencySpyStore) GetVersioned(ctx context.Context, key string) (kvstore.Record, kvstore.Version, error) {
	s.record(ctx, "GetVersioned")
	return s.VersionedStore.GetVersioned(ctx, key)
}

// ScanAll implements kvstore.Store.
func (s *ConsistencySpyStore) ScanAll(ctx context.Context, kind string) ([]kvstore.Record, error) {
	s.record(ctx, "ScanAll")
	return s.VersionedStore.ScanAll(ctx, kind)
}

// Calls returns a copy of all recorded reads.
func (s *ConsistencySpyStore) Calls() []ConsistencyCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ConsistencyCall(nil), s.calls...)
}

var _ kvstore.VersionedStore = (*ConsistencySpyStore)(nil)
