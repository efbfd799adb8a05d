package results

import (
	"context"
	"sort"
	"sync"

	id "certproof/pkg/domain"
	"certproof/pkg/platform/sentinel"
)

// InMemoryRepository keeps records in process memory.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records []Record
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

func (r *InMemoryRepository) Save(_ context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

// FindBySession returns the latest record of a session.
func (r *InMemoryRepository) FindBySession(_ context.Context, sessionID id.SessionID) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var found *Record
	for i := range r.records {
		rec := &r.records[i]
		if rec.SessionID == sessionID && (found == nil || !rec.CertifiedAt.Before(found.CertifiedAt)) {
			found = rec
		}
	}
	if found == nil {
		return Record{}, sentinel.ErrNotFound
	}
	return *found, nil
}

// ListByPhoneHash returns records for a phone, newest first.
func (r *InMemoryRepository) ListByPhoneHash(_ context.Context, phoneHash string) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Record
	for _, rec := range r.records {
		if rec.PhoneHash == phoneHash {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CertifiedAt.After(out[j].CertifiedAt) })
	return out, nil
}
