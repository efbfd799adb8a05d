package session

import (
	"context"

	"certproof/internal/certificate"
	"certproof/internal/platform/tracing"
	id "certproof/pkg/domain"
	dErrors "certproof/pkg/domain-errors"
	"certproof/pkg/platform/audit"
	"certproof/pkg/platform/collaborator"
)

// RequestCertificate hands the session snapshot, the confirmed identity and
// the phone result to the certificate service under a signed attestation.
// The service is keyed by session, so repeating the request is safe.
//
// Errors: CodeNotFound; CodeInvalidState when no proof is verified;
// CodeUnavailable when the certificate service fails.
func (s *Service) RequestCertificate(ctx context.Context, sid id.SessionID) (certificate.Response, error) {
	ctx, span := s.span(ctx, "request_certificate", sid)
	resp, err := s.requestCertificate(ctx, sid)
	tracing.End(span, err)
	return resp, err
}

func (s *Service) requestCertificate(ctx context.Context, sid id.SessionID) (certificate.Response, error) {
	sess, err := s.get(sid)
	if err != nil {
		return certificate.Response{}, err
	}

	sess.mu.Lock()
	snap := sess.registry.Snapshot()
	identity, phone := sess.identity, sess.phoneResult
	sess.mu.Unlock()

	if len(snap.Verified()) == 0 {
		s.recordCertificate("no_proof", snap.CertaintyCoefficient)
		return certificate.Response{}, dErrors.New(dErrors.CodeInvalidState, "no verified proof in session")
	}

	now := s.now()
	token, expiresAt, err := s.signer.Sign(snap, sid, now)
	if err != nil {
		s.recordCertificate("sign_failed", snap.CertaintyCoefficient)
		return certificate.Response{}, err
	}

	resp, err := s.issuer.Issue(ctx, certificate.Request{
		SessionID:            sid.String(),
		Snapshot:             snap,
		Identity:             identity,
		Phone:                phone,
		Attestation:          token,
		AttestationExpiresAt: expiresAt,
		RequestedAt:          now,
	})
	if err != nil {
		s.recordCertificate("unavailable", snap.CertaintyCoefficient)
		if s.logger != nil {
			s.logger.WarnContext(ctx, "certificate service failed",
				"session_id", sid.String(),
				"retryable", collaborator.IsRetryable(err),
				"error", err,
			)
		}
		return certificate.Response{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "certificate service unavailable")
	}
	s.recordCertificate("issued", snap.CertaintyCoefficient)

	sess.mu.Lock()
	sess.certificate = &resp
	sess.mu.Unlock()

	event := certificate.Event{
		Type:                 certificate.EventCertificateRequested,
		SessionID:            sid.String(),
		CertaintyCoefficient: snap.CertaintyCoefficient,
		VerifiedSources:      snap.Verified(),
		OccurredAt:           now,
	}
	if phone != nil {
		score := phone.TrustScore
		event.PhoneHash = s.hasher.Hash(phone.PhoneNumber.String())
		event.ProofLevel = phone.ProofLevel
		event.TrustScore = &score
	}
	s.notify(ctx, event)
	s.emit(ctx, sid, audit.EventCertificateRequested, func(e *audit.Event) {
		e.Outcome = resp.Grade
		e.Attributes = map[string]string{"certificate_id": resp.CertificateID}
	})
	return resp, nil
}

func (s *Service) recordCertificate(result string, coefficient float64) {
	if s.observer != nil {
		s.observer.ObserveCertificateRequest(result, coefficient)
	}
}
