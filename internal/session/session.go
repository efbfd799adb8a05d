// Package session owns the state of one verification flow: its proof
// registry, its current document and its phone certification. Sessions live
// in an Arena and are torn down explicitly, on request or when idle.
package session

import (
	"sync"
	"time"

	"certproof/internal/certificate"
	"certproof/internal/document/extraction"
	"certproof/internal/document/pipeline"
	"certproof/internal/phone/certification"
	"certproof/internal/proof/registry"
	id "certproof/pkg/domain"
	"certproof/pkg/platform/sentinel"
)

// Teardown reasons.
const (
	ReasonClosed    = "closed"
	ReasonAbandoned = "abandoned"
	ReasonShutdown  = "shutdown"
)

// Session is one verification flow. The registry and slot are created with
// the session and released by teardown.
type Session struct {
	ID        id.SessionID
	CreatedAt time.Time

	registry *registry.Registry
	document *pipeline.Slot

	mu          sync.Mutex
	lastActive  time.Time
	phone       *certification.Machine
	identity    *extraction.Confirmed
	phoneResult *certification.Result
	certificate *certificate.Response
	closed      bool
}

// View is a read-only summary of a session.
type View struct {
	ID          id.SessionID
	CreatedAt   time.Time
	LastActive  time.Time
	Snapshot    registry.Snapshot
	Identity    *extraction.Confirmed
	Phone       *certification.Result
	Certificate *certificate.Response
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		ID:          s.ID,
		CreatedAt:   s.CreatedAt,
		LastActive:  s.lastActive,
		Snapshot:    s.registry.Snapshot(),
		Identity:    s.identity,
		Phone:       s.phoneResult,
		Certificate: s.certificate,
	}
}

// Closed reports whether the session was torn down. Results arriving for a
// closed session are stale.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActive = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// register applies a proof unless the session has been torn down. A non-nil
// owner must still be the session's phone flow.
func (s *Session) register(src registry.Source, owner *certification.Machine) (registry.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || (owner != nil && s.phone != owner) {
		return registry.Snapshot{}, sentinel.ErrStale
	}
	if err := s.registry.Register(src); err != nil {
		return registry.Snapshot{}, err
	}
	return s.registry.Snapshot(), nil
}

// phoneProofs are earned by a phone flow and bound to its number.
var phoneProofs = []registry.SourceType{registry.SourceOTP, registry.SourceUSSDCapture}

// replacePhone installs m as the phone flow. When an earlier flow is
// replaced, the proofs it earned are withdrawn and returned. The caller holds
// s.mu.
func (s *Session) replacePhone(m *certification.Machine) []registry.SourceType {
	replaced := s.phone != nil
	s.phone = m
	if !replaced {
		return nil
	}
	var withdrawn []registry.SourceType
	for _, t := range phoneProofs {
		if s.registry.Remove(t) {
			withdrawn = append(withdrawn, t)
		}
	}
	return withdrawn
}

func (s *Session) machine() *certification.Machine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phone
}

func (s *Session) referenceName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil || s.identity.Fields.FullName == nil {
		return ""
	}
	return *s.identity.Fields.FullName
}

func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.phone = nil
	s.identity = nil
	s.mu.Unlock()

	s.document.Close()
	s.registry.Reset()
}

// Arena holds the live sessions. A session removed from the arena is closed
// and every later lookup fails with sentinel.ErrNotFound.
type Arena struct {
	mu       sync.RWMutex
	sessions map[id.SessionID]*Session
	newSlot  func(id.SessionID) *pipeline.Slot
	regOpts  []registry.Option
}

// NewArena builds sessions with slots from newSlot and registries from opts.
func NewArena(newSlot func(id.SessionID) *pipeline.Slot, opts ...registry.Option) *Arena {
	return &Arena{
		sessions: make(map[id.SessionID]*Session),
		newSlot:  newSlot,
		regOpts:  opts,
	}
}

func (a *Arena) Create(now time.Time) *Session {
	sid := id.NewSessionID()
	s := &Session{
		ID:         sid,
		CreatedAt:  now,
		lastActive: now,
		registry:   registry.New(a.regOpts...),
		document:   a.newSlot(sid),
	}
	a.mu.Lock()
	a.sessions[s.ID] = s
	a.mu.Unlock()
	return s
}

// Get returns a live session and marks it active at now.
func (a *Arena) Get(sid id.SessionID, now time.Time) (*Session, error) {
	a.mu.RLock()
	s, ok := a.sessions[sid]
	a.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	s.touch(now)
	return s, nil
}

// Teardown removes and closes a session. In-flight document runs are
// cancelled and awaited before it returns.
func (a *Arena) Teardown(sid id.SessionID) (*Session, error) {
	a.mu.Lock()
	s, ok := a.sessions[sid]
	delete(a.sessions, sid)
	a.mu.Unlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	s.close()
	return s, nil
}

// Idle lists sessions inactive since before cutoff.
func (a *Arena) Idle(cutoff time.Time) []id.SessionID {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var ids []id.SessionID
	for sid, s := range a.sessions {
		if s.idleSince().Before(cutoff) {
			ids = append(ids, sid)
		}
	}
	return ids
}

// IDs lists every live session.
func (a *Arena) IDs() []id.SessionID {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ids := make([]id.SessionID, 0, len(a.sessions))
	for sid := range a.sessions {
		ids = append(ids, sid)
	}
	return ids
}

func (a *Arena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.sessions)
}
