package store

import (
	"context"
	"sync"
	"time"

	"certproof/pkg/platform/sentinel"
)

type memoryEntry struct {
	value     Published
	expiresAt time.Time
}

// InMemoryStore is the single-instance SnapshotStore.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]memoryEntry), now: time.Now}
}

// WithClock is for tests.
func (s *InMemoryStore) WithClock(now func() time.Time) *InMemoryStore {
	s.now = now
	return s
}

func (s *InMemoryStore) Put(_ context.Context, p Published, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[p.SessionID] = memoryEntry{value: p, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, sessionID string) (Published, error) {
	s.mu.RLock()
	e, ok := s.entries[sessionID]
	s.mu.RUnlock()
	if !ok || !s.now().Before(e.expiresAt) {
		return Published{}, sentinel.ErrNotFound
	}
	return e.value, nil
}

func (s *InMemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionID)
	return nil
}
