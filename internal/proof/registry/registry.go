// Package registry accumulates the proofs of one verification session and
// derives its certainty coefficient.
//
// The coefficient depends only on which sources are currently verified. It
// is 0 for an empty registry, never exceeds 1, and never decreases when a
// source becomes verified, whatever the registration order.
package registry

import (
	"sync"
	"time"

	dErrors "certproof/pkg/domain-errors"
)

// Registry holds at most one Source per type.
type Registry struct {
	mu      sync.Mutex
	sources map[SourceType]Source
	now     func() time.Time
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func New(opts ...Option) *Registry {
	r := &Registry{
		sources: make(map[SourceType]Source),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds s, replacing any source of the same type. Weight and
// RegisteredAt are set by the registry.
//
// Errors: CodeValidation for an unknown source type.
func (r *Registry) Register(s Source) error {
	if !s.Type.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown proof source "+string(s.Type))
	}
	s.Weight = Weight(s.Type)
	if s.DetailScore != nil {
		v := *s.DetailScore
		s.DetailScore = &v
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	s.RegisteredAt = r.now()
	r.sources[s.Type] = s
	return nil
}

// Snapshot copies the sources in canonical order with the coefficient.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	sources := make([]Source, 0, len(r.sources))
	verified := 0
	for _, t := range order {
		if s, ok := r.sources[t]; ok {
			sources = append(sources, s)
			if s.Verified {
				verified++
			}
		}
	}
	return Snapshot{
		Sources:              sources,
		CertaintyCoefficient: NormalizedSum(sources),
		EvidenceReliability:  EvidenceReliability(verified, len(sources)-verified),
	}
}

// Remove drops the source of type t and reports whether one was registered.
func (r *Registry) Remove(t SourceType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sources[t]
	delete(r.sources, t)
	return ok
}

// Len is the number of registered types.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sources)
}

// Reset drops every source.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.sources)
}
