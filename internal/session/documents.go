package session

import (
	"context"
	"io"

	"certproof/internal/document/extraction"
	"certproof/internal/document/pipeline"
	"certproof/internal/platform/tracing"
	"certproof/internal/proof/registry"
	id "certproof/pkg/domain"
	"certproof/pkg/platform/audit"
	"certproof/pkg/platform/outcome"
)

// SubmitDocument decodes an upload and starts its pipeline. Any document
// already in the session is replaced and its late result discarded.
//
// Errors: CodeNotFound; CodeInvalidInput for an unreadable image.
func (s *Service) SubmitDocument(ctx context.Context, sid id.SessionID, r io.Reader, docType id.DocumentType) (pipeline.Document, error) {
	sess, err := s.get(sid)
	if err != nil {
		return pipeline.Document{}, err
	}
	img, err := pipeline.Decode(r, s.maxUpload)
	if err != nil {
		return pipeline.Document{}, err
	}
	doc := sess.document.Submit(img, docType)
	s.emit(ctx, sid, audit.EventDocumentSubmitted, func(e *audit.Event) {
		e.Source = string(registry.SourceDocumentOCR)
		e.Attributes = map[string]string{"document_type": docType.String()}
	})
	return doc, nil
}

// DocumentStatus returns the current document.
//
// Errors: CodeNotFound for an unknown session or a token that is no longer
// current.
func (s *Service) DocumentStatus(_ context.Context, sid id.SessionID, token id.DocumentToken) (pipeline.Document, error) {
	sess, err := s.get(sid)
	if err != nil {
		return pipeline.Document{}, err
	}
	doc, err := sess.document.Status(token)
	if err != nil {
		return pipeline.Document{}, translate(err, "document")
	}
	return doc, nil
}

// ConfirmDocument freezes the extracted fields and registers the document
// as a verified proof carrying its extraction confidence. The confirmed full
// name becomes the reference for the phone name match.
//
// Errors: CodeNotFound; CodeInvalidState unless the document is ready;
// CodeReviewRequired when a low-confidence review is not acknowledged;
// CodeValidation for unknown correction fields.
func (s *Service) ConfirmDocument(ctx context.Context, sid id.SessionID, token id.DocumentToken, corrections map[string]string, acknowledged bool) (extraction.Confirmed, registry.Snapshot, error) {
	ctx, span := s.span(ctx, "confirm_document", sid)
	confirmed, snap, err := s.confirmDocument(ctx, sid, token, corrections, acknowledged)
	tracing.End(span, err)
	return confirmed, snap, err
}

func (s *Service) confirmDocument(ctx context.Context, sid id.SessionID, token id.DocumentToken, corrections map[string]string, acknowledged bool) (extraction.Confirmed, registry.Snapshot, error) {
	sess, err := s.get(sid)
	if err != nil {
		return extraction.Confirmed{}, registry.Snapshot{}, err
	}
	confirmed, err := sess.document.Confirm(token, corrections, acknowledged)
	if err != nil {
		return extraction.Confirmed{}, registry.Snapshot{}, translate(err, "document")
	}

	sess.mu.Lock()
	sess.identity = &confirmed
	sess.mu.Unlock()

	confidence := confirmed.Confidence
	snap, err := s.register(ctx, sess, registry.Source{
		Type:        registry.SourceDocumentOCR,
		Verified:    true,
		DetailScore: &confidence,
	}, nil)
	if err != nil {
		return extraction.Confirmed{}, registry.Snapshot{}, err
	}

	s.emit(ctx, sid, audit.EventDocumentConfirmed, func(e *audit.Event) {
		e.Source = string(registry.SourceDocumentOCR)
		if confirmed.Fields.DocumentNumber != nil {
			e.SubjectIDHash = s.hasher.Hash(*confirmed.Fields.DocumentNumber)
		}
		if len(confirmed.UserCorrected) > 0 {
			e.Reason = "user_corrected"
		}
	})
	return confirmed, snap, nil
}

// CancelDocument abandons the current document. A result still in flight is
// discarded when it arrives.
//
// Errors: CodeNotFound.
func (s *Service) CancelDocument(ctx context.Context, sid id.SessionID, token id.DocumentToken) error {
	sess, err := s.get(sid)
	if err != nil {
		return err
	}
	if err := sess.document.Cancel(token); err != nil {
		return translate(err, "document")
	}
	s.emit(ctx, sid, audit.EventDocumentCancelled, func(e *audit.Event) {
		e.Source = string(registry.SourceDocumentOCR)
	})
	return nil
}

// RetryDocument re-runs a document whose recognition failed.
//
// Errors: CodeNotFound; CodeInvalidState unless the document failed.
func (s *Service) RetryDocument(ctx context.Context, sid id.SessionID, token id.DocumentToken) (pipeline.Document, error) {
	sess, err := s.get(sid)
	if err != nil {
		return pipeline.Document{}, err
	}
	doc, err := sess.document.Retry(token)
	if err != nil {
		return pipeline.Document{}, translate(err, "document")
	}
	s.emit(ctx, sid, audit.EventDocumentSubmitted, func(e *audit.Event) {
		e.Source = string(registry.SourceDocumentOCR)
		e.Reason = "retry"
		e.Attributes = map[string]string{"document_type": doc.Type.String()}
	})
	return doc, nil
}

// documentListener audits finished pipeline runs for sid.
func (s *Service) documentListener(sid id.SessionID) pipeline.Listener {
	return func(doc pipeline.Document, stale bool) {
		ctx := context.WithoutCancel(s.ctx)
		switch {
		case stale:
			s.emit(ctx, sid, audit.EventStaleResult, func(e *audit.Event) {
				e.Source = string(registry.SourceDocumentOCR)
			})
		case doc.Status == pipeline.StatusFailed:
			s.emit(ctx, sid, audit.EventDocumentFailed, func(e *audit.Event) {
				e.Source = string(registry.SourceDocumentOCR)
				e.Outcome = string(outcome.StatusFailed)
			})
		default:
			s.emit(ctx, sid, audit.EventDocumentAnalyzed, func(e *audit.Event) {
				e.Source = string(registry.SourceDocumentOCR)
				e.Outcome = string(doc.Extraction)
				e.Reason = doc.DegradedReason
				e.Attributes = map[string]string{"document_type": doc.Type.String()}
			})
		}
	}
}
