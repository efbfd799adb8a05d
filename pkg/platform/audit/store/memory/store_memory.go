package memory

import (
	"context"
	"sync"

	id "certproof/pkg/domain"
	audit "certproof/pkg/platform/audit"
)

// InMemoryStore keeps audit events per session. Used in tests and single-node deployments.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.SessionID][]audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.SessionID][]audit.Event)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[id.SessionID][]audit.Event)
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.SessionID] = append(s.events[event.SessionID], event)
	return nil
}

func (s *InMemoryStore) ListBySession(_ context.Context, sessionID id.SessionID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[sessionID]...), nil
}

// ListByCategory returns every event of a category across sessions.
func (s *InMemoryStore) ListByCategory(_ context.Context, category audit.EventCategory) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, events := range s.events {
		for _, e := range events {
			if e.Category == category {
				out = append(out, e)
			}
		}
	}
	return out, nil
}
