package kvstore

import (
	"context"
	"slices"
	"sync"
)

type memoryEntry struct {
	record  Record
	version Version
}

// MemoryStore is an in-process VersionedStore backed by a map.
// ScanAll returns records in key order. Values are copied on the way in and out.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

// Put writes a single record.
func (s *MemoryStore) Put(ctx context.Context, key string, record Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if key == "" {
		return ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.putLocked(key, record)

	return nil
}

// PutMany writes all records under one lock, so the batch is applied atomically.
func (s *MemoryStore) PutMany(ctx context.Context, records map[string]Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for key := range records {
		if key == "" {
			return ErrEmptyKey
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, record := range records {
		s.putLocked(key, record)
	}

	return nil
}

// Get returns the record stored under key.
func (s *MemoryStore) Get(ctx context.Context, key string) (Record, error) {
	record, _, err := s.GetVersioned(ctx, key)

	return record, err
}

// GetVersioned returns the record stored under key together with its version.
func (s *MemoryStore) GetVersioned(ctx context.Context, key string) (Record, Version, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.entries[key]
	if !exists {
		return Record{}, 0, ErrKeyNotFound
	}

	return copyRecord(entry.record), entry.version, nil
}

// PutIfVersion overwrites the record under key if its version is still expected.
func (s *MemoryStore) PutIfVersion(ctx context.Context, key string, record Record, expected Version) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[key]
	if !exists {
		return ErrKeyNotFound
	}

	if entry.version != expected {
		return ErrVersionConflict
	}

	s.putLocked(key, record)

	return nil
}

// ScanAll returns all records of the given kind, ordered by key.
func (s *MemoryStore) ScanAll(ctx context.Context, kind string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries))
	for key, entry := range s.entries {
		if entry.record.Kind == kind {
			keys = append(keys, key)
		}
	}

	slices.Sort(keys)

	records := make([]Record, 0, len(keys))
	for _, key := range keys {
		records = append(records, copyRecord(s.entries[key].record))
	}

	return records, nil
}

// Len returns the number of stored records of all kinds.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

func (s *MemoryStore) putLocked(key string, record Record) {
	previous := s.entries[key]
	s.entries[key] = memoryEntry{
		record:  copyRecord(record),
		version: previous.version + 1,
	}
}

func copyRecord(record Record) Record {
	return Record{
		Kind:  record.Kind,
		Value: slices.Clone(record.Value),
	}
}

var _ VersionedStore = (*MemoryStore)(nil)
