package pipeline

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"time"

	"certproof/internal/document/extraction"
	id "certproof/pkg/domain"
	dErrors "certproof/pkg/domain-errors"
	"certproof/pkg/platform/outcome"
	"certproof/pkg/platform/sentinel"
)

// Status is the lifecycle of one submitted document.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
	StatusConfirmed  Status = "confirmed"
)

// Document is a point-in-time view of the current submission.
type Document struct {
	Token          id.DocumentToken
	Type           id.DocumentType
	Status         Status
	SlowAnalysis   bool
	Attempt        int
	OCRConfidence  float64
	Extraction     outcome.Status
	DegradedReason string
	Fields         extraction.Fields
	Review         extraction.Review
	AppliedSteps   []string
	Failure        string
	SubmittedAt    time.Time
	CompletedAt    time.Time
	Confirmed      *extraction.Confirmed
}

type entry struct {
	doc Document

	// img is released on confirmation or cancellation.
	img        image.Image
	generation int
}

// Slot holds at most one document per session. Submitting a new document or
// cancelling the current one makes any in-flight result for it stale.
type Slot struct {
	pipeline *Pipeline
	logger   *slog.Logger
	observer Observer
	listener Listener
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	current    *entry
	generation int
}

type SlotOption func(*Slot)

// Listener is told about every finished run, outside the slot lock. A stale
// result carries only its token.
type Listener func(doc Document, stale bool)

func WithSlotLogger(logger *slog.Logger) SlotOption {
	return func(s *Slot) { s.logger = logger }
}

// WithSlotObserver records stale discards.
func WithSlotObserver(o Observer) SlotOption {
	return func(s *Slot) { s.observer = o }
}

func WithSlotListener(l Listener) SlotOption {
	return func(s *Slot) { s.listener = l }
}

func WithSlotClock(now func() time.Time) SlotOption {
	return func(s *Slot) { s.now = now }
}

// NewSlot derives its run context from parent; Close cancels it.
func NewSlot(parent context.Context, p *Pipeline, opts ...SlotOption) *Slot {
	ctx, cancel := context.WithCancel(parent)
	s := &Slot{pipeline: p, now: time.Now, ctx: ctx, cancel: cancel}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit replaces the current document and starts processing it.
func (s *Slot) Submit(img image.Image, docType id.DocumentType) Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	e := &entry{
		img:        img,
		generation: s.generation,
		doc: Document{
			Token:       id.NewDocumentToken(),
			Type:        docType,
			Status:      StatusProcessing,
			Attempt:     1,
			SubmittedAt: s.now(),
		},
	}
	s.current = e
	s.start(e)
	return e.doc
}

// Status returns the current document.
//
// Errors: sentinel.ErrNotFound when token is not the current document.
func (s *Slot) Status(token id.DocumentToken) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(token)
	if err != nil {
		return Document{}, err
	}
	return e.doc, nil
}

// Retry re-enters the pipeline from preprocessing after a recognition failure.
//
// Errors: sentinel.ErrNotFound for a non-current token; CodeInvalidState
// unless the document failed.
func (s *Slot) Retry(token id.DocumentToken) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(token)
	if err != nil {
		return Document{}, err
	}
	if e.doc.Status != StatusFailed {
		return Document{}, dErrors.New(dErrors.CodeInvalidState, "only failed documents can be retried")
	}

	s.generation++
	e.generation = s.generation
	e.doc.Attempt++
	e.doc.Status = StatusProcessing
	e.doc.SlowAnalysis = false
	e.doc.Failure = ""
	e.doc.CompletedAt = time.Time{}
	s.start(e)
	return e.doc, nil
}

// Cancel abandons the current document and drops its image. A result still
// in flight is discarded when it arrives.
//
// Errors: sentinel.ErrNotFound for a non-current token.
func (s *Slot) Cancel(token id.DocumentToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(token)
	if err != nil {
		return err
	}
	e.img = nil
	s.current = nil
	return nil
}

// Confirm freezes the extracted fields with optional user corrections.
//
// Errors: sentinel.ErrNotFound for a non-current token; CodeInvalidState
// unless the document is ready; CodeReviewRequired and CodeValidation from
// extraction.Confirm.
func (s *Slot) Confirm(token id.DocumentToken, corrections map[string]string, acknowledged bool) (extraction.Confirmed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(token)
	if err != nil {
		return extraction.Confirmed{}, err
	}
	if e.doc.Status != StatusReady {
		return extraction.Confirmed{}, dErrors.New(dErrors.CodeInvalidState, "document is "+string(e.doc.Status))
	}

	confirmed, err := extraction.Confirm(e.doc.Review, e.doc.Fields, corrections, acknowledged)
	if err != nil {
		return extraction.Confirmed{}, err
	}
	e.doc.Status = StatusConfirmed
	e.doc.Confirmed = &confirmed
	e.img = nil
	return confirmed, nil
}

// Close drops the current document, then cancels in-flight runs and waits
// for them. Their results arrive stale.
func (s *Slot) Close() {
	s.mu.Lock()
	if s.current != nil {
		s.current.img = nil
	}
	s.current = nil
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

// Wait blocks until no run is in flight.
func (s *Slot) Wait() {
	s.wg.Wait()
}

func (s *Slot) lookup(token id.DocumentToken) (*entry, error) {
	if s.current == nil || s.current.doc.Token != token {
		return nil, sentinel.ErrNotFound
	}
	return s.current, nil
}

// start must be called with mu held.
func (s *Slot) start(e *entry) {
	token, gen, img, docType := e.doc.Token, e.generation, e.img, e.doc.Type
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		out, err := s.pipeline.Run(s.ctx, img, docType, func() { s.markSlow(token, gen) })
		doc, ferr := s.finish(token, gen, out, err)
		stale := ferr != nil
		if stale && s.logger != nil {
			s.logger.InfoContext(s.ctx, "discarded stale document result", "document_token", token.String())
		}
		if s.listener != nil {
			s.listener(doc, stale)
		}
	}()
}

func (s *Slot) markSlow(token id.DocumentToken, gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, err := s.lookup(token); err == nil && e.generation == gen {
		e.doc.SlowAnalysis = true
	}
}

// finish applies a run result, or returns sentinel.ErrStale when the document
// was replaced or cancelled meanwhile.
func (s *Slot) finish(token id.DocumentToken, gen int, out Output, runErr error) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(token)
	if err != nil || e.generation != gen {
		if s.observer != nil {
			s.observer.IncrementStaleDiscarded()
		}
		return Document{Token: token}, sentinel.ErrStale
	}

	e.doc.CompletedAt = s.now()
	e.doc.AppliedSteps = out.AppliedSteps
	if runErr != nil {
		e.doc.Status = StatusFailed
		e.doc.Failure = runErr.Error()
		if s.logger != nil {
			s.logger.WarnContext(s.ctx, "document recognition failed",
				"document_token", token.String(),
				"attempt", e.doc.Attempt,
				"error", runErr,
			)
		}
		return e.doc, nil
	}

	e.doc.Status = StatusReady
	e.doc.OCRConfidence = out.OCR.Confidence
	e.doc.Extraction = out.Extraction.Status
	e.doc.DegradedReason = out.Extraction.Reason
	e.doc.Fields = out.Extraction.Value
	e.doc.Review = out.Review
	return e.doc, nil
}
