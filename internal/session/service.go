package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"certproof/internal/certificate"
	"certproof/internal/certificate/results"
	"certproof/internal/document/pipeline"
	"certproof/internal/phone/certification"
	"certproof/internal/platform/tracing"
	"certproof/internal/proof/attest"
	"certproof/internal/proof/registry"
	"certproof/internal/session/store"
	id "certproof/pkg/domain"
	dErrors "certproof/pkg/domain-errors"
	"certproof/pkg/platform/audit"
	"certproof/pkg/platform/pseudonym"
	"certproof/pkg/platform/sentinel"
	"certproof/pkg/requestcontext"
)

// AuditPublisher records audit events. Satisfied by audit/publisher.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// EventPublisher feeds the scoring service. Satisfied by certificate.Feed.
type EventPublisher interface {
	Publish(ctx context.Context, e certificate.Event) error
}

// Observer receives session lifecycle metrics.
type Observer interface {
	IncrementStarted()
	IncrementTeardown(reason string)
	IncrementProof(source string, verified bool)
	ObserveCertificateRequest(result string, coefficient float64)
}

// Gauge tracks the number of live sessions.
type Gauge interface {
	SetActiveSessions(n int)
}

// Service runs every operation of a verification flow against the session
// that owns it.
type Service struct {
	arena    *Arena
	pipeline *pipeline.Pipeline
	phone    *certification.Service
	signer   *attest.Signer
	issuer   certificate.Issuer

	feed      EventPublisher
	results   results.Repository
	snapshots store.SnapshotStore
	auditor   AuditPublisher
	hasher    *pseudonym.Hasher
	observer  Observer
	gauge     Gauge
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time

	slotOpts    []pipeline.SlotOption
	regOpts     []registry.Option
	idleTTL     time.Duration
	snapshotTTL time.Duration
	maxUpload   int64

	ctx    context.Context
	cancel context.CancelFunc
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

func WithGauge(g Gauge) Option {
	return func(s *Service) { s.gauge = g }
}

func WithAuditor(a AuditPublisher) Option {
	return func(s *Service) { s.auditor = a }
}

// WithFeed publishes completion and certificate events.
func WithFeed(f EventPublisher) Option {
	return func(s *Service) { s.feed = f }
}

func WithResults(r results.Repository) Option {
	return func(s *Service) { s.results = r }
}

func WithSnapshotStore(st store.SnapshotStore, ttl time.Duration) Option {
	return func(s *Service) {
		s.snapshots = st
		s.snapshotTTL = ttl
	}
}

func WithHasher(h *pseudonym.Hasher) Option {
	return func(s *Service) { s.hasher = h }
}

// WithSlotOptions applies to the document slot of every new session.
func WithSlotOptions(opts ...pipeline.SlotOption) Option {
	return func(s *Service) { s.slotOpts = append(s.slotOpts, opts...) }
}

// WithRegistryOptions applies to the registry of every new session.
func WithRegistryOptions(opts ...registry.Option) Option {
	return func(s *Service) { s.regOpts = append(s.regOpts, opts...) }
}

// WithIdleTTL sets how long a session may stay inactive before Sweep
// tears it down.
func WithIdleTTL(ttl time.Duration) Option {
	return func(s *Service) { s.idleTTL = ttl }
}

func WithMaxUpload(n int64) Option {
	return func(s *Service) { s.maxUpload = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(p *pipeline.Pipeline, phone *certification.Service, signer *attest.Signer, issuer certificate.Issuer, opts ...Option) *Service {
	s := &Service{
		pipeline:    p,
		phone:       phone,
		signer:      signer,
		issuer:      issuer,
		results:     results.NewInMemoryRepository(),
		snapshots:   store.NewInMemoryStore(),
		snapshotTTL: time.Hour,
		idleTTL:     30 * time.Minute,
		maxUpload:   10 << 20,
		now:         time.Now,
		tracer:      tracing.Tracer("session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	regOpts := append([]registry.Option{registry.WithClock(s.now)}, s.regOpts...)
	s.arena = NewArena(s.newSlot, regOpts...)
	return s
}

func (s *Service) newSlot(sid id.SessionID) *pipeline.Slot {
	opts := []pipeline.SlotOption{
		pipeline.WithSlotClock(s.now),
		pipeline.WithSlotListener(s.documentListener(sid)),
	}
	opts = append(opts, s.slotOpts...)
	if s.logger != nil {
		opts = append(opts, pipeline.WithSlotLogger(s.logger))
	}
	return pipeline.NewSlot(s.ctx, s.pipeline, opts...)
}

// StartSession opens a new verification flow with an empty registry.
func (s *Service) StartSession(ctx context.Context) View {
	sess := s.arena.Create(s.now())
	if s.observer != nil {
		s.observer.IncrementStarted()
	}
	s.syncGauge()
	s.emit(ctx, sess.ID, audit.EventSessionStarted, nil)
	if s.logger != nil {
		s.logger.InfoContext(ctx, "session started", "session_id", sess.ID.String())
	}
	return sess.View()
}

// Session returns a summary of a live session.
//
// Errors: CodeNotFound.
func (s *Service) Session(_ context.Context, sid id.SessionID) (View, error) {
	sess, err := s.get(sid)
	if err != nil {
		return View{}, err
	}
	return sess.View(), nil
}

// Snapshot returns the current certainty snapshot of a session.
//
// Errors: CodeNotFound.
func (s *Service) Snapshot(_ context.Context, sid id.SessionID) (registry.Snapshot, error) {
	sess, err := s.get(sid)
	if err != nil {
		return registry.Snapshot{}, err
	}
	return sess.registry.Snapshot(), nil
}

// End tears a session down at the user's request. Its published snapshot is
// withdrawn.
//
// Errors: CodeNotFound.
func (s *Service) End(ctx context.Context, sid id.SessionID) error {
	return s.teardown(ctx, sid, ReasonClosed)
}

// Sweep tears down sessions idle for longer than the idle TTL and returns
// how many were removed.
func (s *Service) Sweep(ctx context.Context) int {
	idle := s.arena.Idle(s.now().Add(-s.idleTTL))
	removed := 0
	for _, sid := range idle {
		if err := s.teardown(ctx, sid, ReasonAbandoned); err == nil {
			removed++
		}
	}
	if removed > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "swept abandoned sessions", "count", removed)
	}
	return removed
}

// Close tears down every session and cancels in-flight document runs.
func (s *Service) Close(ctx context.Context) {
	s.cancel()
	for _, sid := range s.arena.IDs() {
		_ = s.teardown(ctx, sid, ReasonShutdown)
	}
}

func (s *Service) teardown(ctx context.Context, sid id.SessionID, reason string) error {
	if _, err := s.arena.Teardown(sid); err != nil {
		return translate(err, "session")
	}
	if err := s.snapshots.Delete(ctx, sid.String()); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to withdraw snapshot", "session_id", sid.String(), "error", err)
	}
	if s.observer != nil {
		s.observer.IncrementTeardown(reason)
	}
	s.syncGauge()

	action := audit.EventSessionClosed
	if reason == ReasonAbandoned {
		action = audit.EventSessionAbandoned
	}
	s.emit(ctx, sid, action, func(e *audit.Event) { e.Reason = reason })
	return nil
}

func (s *Service) get(sid id.SessionID) (*Session, error) {
	sess, err := s.arena.Get(sid, s.now())
	if err != nil {
		return nil, translate(err, "session")
	}
	return sess, nil
}

// register applies a proof to the session registry and republishes the
// snapshot. Phone proofs pass the machine that earned them.
func (s *Service) register(ctx context.Context, sess *Session, src registry.Source, owner *certification.Machine) (registry.Snapshot, error) {
	snap, err := sess.register(src, owner)
	if err != nil {
		if errors.Is(err, sentinel.ErrStale) {
			s.emit(ctx, sess.ID, audit.EventStaleResult, func(e *audit.Event) { e.Source = string(src.Type) })
		}
		return registry.Snapshot{}, translate(err, "session")
	}
	if s.observer != nil {
		s.observer.IncrementProof(string(src.Type), src.Verified)
	}
	s.emit(ctx, sess.ID, audit.EventProofRegistered, func(e *audit.Event) {
		e.Source = string(src.Type)
		e.Outcome = boolOutcome(src.Verified)
	})
	s.publish(ctx, sess.ID, snap)
	return snap, nil
}

func (s *Service) publish(ctx context.Context, sid id.SessionID, snap registry.Snapshot) {
	p := store.Published{SessionID: sid.String(), Snapshot: snap, PublishedAt: s.now()}
	if err := s.snapshots.Put(ctx, p, s.snapshotTTL); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to publish snapshot", "session_id", sid.String(), "error", err)
	}
}

// emit records an audit event. Failures are logged, never returned.
func (s *Service) emit(ctx context.Context, sid id.SessionID, action audit.AuditEvent, fill func(*audit.Event)) {
	if s.auditor == nil {
		return
	}
	e := audit.NewEvent(sid, action)
	e.Timestamp = s.now()
	e.RequestID = requestcontext.RequestID(ctx)
	if fill != nil {
		fill(&e)
	}
	if err := s.auditor.Emit(ctx, e); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"session_id", sid.String(),
			"action", string(action),
			"error", err,
		)
	}
}

func (s *Service) syncGauge() {
	if s.gauge != nil {
		s.gauge.SetActiveSessions(s.arena.Len())
	}
}

// translate maps infrastructure sentinels to coded errors.
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, what+" not found")
	case errors.Is(err, sentinel.ErrStale):
		return dErrors.Wrap(err, dErrors.CodeNotFound, what+" no longer active")
	case errors.Is(err, sentinel.ErrExpired):
		return dErrors.Wrap(err, dErrors.CodeExpired, what+" expired")
	default:
		return err
	}
}

func boolOutcome(verified bool) string {
	if verified {
		return "verified"
	}
	return "unverified"
}

func (s *Service) span(ctx context.Context, name string, sid id.SessionID) (context.Context, trace.Span) {
	return tracing.Start(ctx, s.tracer, "session."+name, "session_id", sid.String())
}
