package artifactcache

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is a thread-safe in-memory Store for development and tests.
type MemStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[string]Entry)}
}

func (s *MemStore) Get(_ context.Context, key Key) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key.String()]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return cloneEntry(entry), nil
}

func (s *MemStore) InsertOrGet(_ context.Context, entry Entry) (*Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := entry.Key.String()
	if existing, ok := s.entries[k]; ok {
		return cloneEntry(existing), false, nil
	}
	s.entries[k] = entry
	return cloneEntry(entry), true, nil
}

func (s *MemStore) Replace(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[entry.Key.String()] = entry
	return nil
}

func (s *MemStore) DeleteByAccount(_ context.Context, accountID uuid.UUID, kinds ...Kind) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for k, entry := range s.entries {
		if entry.Key.AccountID != accountID {
			continue
		}
		if len(kinds) > 0 && !slices.Contains(kinds, entry.Key.Kind) {
			continue
		}
		delete(s.entries, k)
		deleted++
	}
	return deleted, nil
}

func (s *MemStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for k, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, k)
			deleted++
		}
	}
	return deleted, nil
}

// Len returns the number of stored entries, for tests.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// cloneEntry copies the entry so callers can't mutate stored state.
func cloneEntry(e Entry) *Entry {
	out := e
	out.Payload = slices.Clone(e.Payload)
	if e.ExpiresAt != nil {
		t := *e.ExpiresAt
		out.ExpiresAt = &t
	}
	return &out
}
