package session

import (
	"context"

	"certproof/internal/certificate"
	"certproof/internal/certificate/results"
	"certproof/internal/phone/certification"
	"certproof/internal/platform/tracing"
	"certproof/internal/proof/registry"
	id "certproof/pkg/domain"
	dErrors "certproof/pkg/domain-errors"
	"certproof/pkg/platform/audit"
	"certproof/pkg/platform/middleware/device"
	"certproof/pkg/platform/outcome"
)

// CaptureResult is the machine after a screenshot analysis, with how the
// analysis went.
type CaptureResult struct {
	View   certification.View
	Status outcome.Status
	Reason string
}

// StartPhone enters the otp step for phone and dispatches the first code.
// Starting again with the same number resumes the existing flow; a different
// number replaces it unless the flow is complete.
//
// A failed dispatch returns the view with CodeUnavailable; the machine stays
// in otp and ResendOTP retries.
//
// Errors: CodeNotFound; CodeConflict once a certification is complete;
// CodeUnavailable.
func (s *Service) StartPhone(ctx context.Context, sid id.SessionID, phone id.PhoneNumber) (certification.View, error) {
	sess, err := s.get(sid)
	if err != nil {
		return certification.View{}, err
	}

	sess.mu.Lock()
	m := sess.phone
	var withdrawn []registry.SourceType
	switch {
	case m != nil && m.State() == certification.StateComplete:
		sess.mu.Unlock()
		return certification.View{}, dErrors.New(dErrors.CodeConflict, "phone certification already complete")
	case m == nil || m.Phone() != phone:
		m = certification.NewMachine(phone)
		withdrawn = sess.replacePhone(m)
	}
	sess.mu.Unlock()

	if len(withdrawn) > 0 {
		s.withdraw(ctx, sess, withdrawn)
	}

	if !m.NeedsDispatch() {
		return m.View(), nil
	}
	if err := s.phone.Dispatch(ctx, m); err != nil {
		return m.View(), err
	}
	s.auditOTPSent(ctx, sid, m)
	return m.View(), nil
}

// PhoneStatus returns the phone certification view.
//
// Errors: CodeNotFound for an unknown session or when no flow was started.
func (s *Service) PhoneStatus(_ context.Context, sid id.SessionID) (certification.View, error) {
	_, m, err := s.phoneFlow(sid)
	if err != nil {
		return certification.View{}, err
	}
	return m.View(), nil
}

// VerifyOTP checks a code and, on success, registers the otp proof.
//
// Errors: CodeNotFound; CodeValidation for a malformed or rejected code;
// CodeExpired; CodeInvalidState; CodeUnavailable.
func (s *Service) VerifyOTP(ctx context.Context, sid id.SessionID, code string) (certification.View, error) {
	sess, m, err := s.phoneFlow(sid)
	if err != nil {
		return certification.View{}, err
	}
	ctx, span := s.span(ctx, "verify_otp", sid)
	defer func() { tracing.End(span, err) }()

	if err = s.phone.Verify(ctx, m, code); err != nil {
		if dErrors.HasCode(err, dErrors.CodeValidation) || dErrors.HasCode(err, dErrors.CodeExpired) {
			s.emit(ctx, sid, audit.EventOTPRejected, func(e *audit.Event) {
				e.Source = string(registry.SourceOTP)
				e.Reason = string(dErrors.CodeOf(err))
				e.SubjectIDHash = s.hasher.Hash(m.Phone().String())
			})
		}
		return m.View(), err
	}

	s.emit(ctx, sid, audit.EventOTPVerified, func(e *audit.Event) {
		e.Source = string(registry.SourceOTP)
		e.SubjectIDHash = s.hasher.Hash(m.Phone().String())
	})
	if _, err = s.register(ctx, sess, registry.Source{Type: registry.SourceOTP, Verified: true}, m); err != nil {
		return certification.View{}, err
	}
	return m.View(), nil
}

// ResendOTP invalidates the code in flight and sends a new one.
//
// Errors: CodeNotFound; CodeInvalidState outside otp; CodeUnavailable.
func (s *Service) ResendOTP(ctx context.Context, sid id.SessionID) (certification.View, error) {
	_, m, err := s.phoneFlow(sid)
	if err != nil {
		return certification.View{}, err
	}
	if err := s.phone.Resend(ctx, m); err != nil {
		return m.View(), err
	}
	s.auditOTPSent(ctx, sid, m)
	return m.View(), nil
}

// SkipOTP moves past the otp step without a possession proof.
//
// Errors: CodeNotFound; CodeInvalidState outside otp.
func (s *Service) SkipOTP(ctx context.Context, sid id.SessionID) (certification.View, error) {
	return s.skip(ctx, sid, certification.StateOTP, registry.SourceOTP)
}

// SkipUSSD moves past the screenshot step without a visual proof.
//
// Errors: CodeNotFound; CodeInvalidState outside ussd.
func (s *Service) SkipUSSD(ctx context.Context, sid id.SessionID) (certification.View, error) {
	return s.skip(ctx, sid, certification.StateUSSD, registry.SourceUSSDCapture)
}

func (s *Service) skip(ctx context.Context, sid id.SessionID, step certification.State, source registry.SourceType) (certification.View, error) {
	_, m, err := s.phoneFlow(sid)
	if err != nil {
		return certification.View{}, err
	}
	if st := m.State(); st != step {
		return m.View(), dErrors.New(dErrors.CodeInvalidState, "cannot skip "+string(step)+" in state "+string(st))
	}
	if err := m.Skip(); err != nil {
		return m.View(), err
	}
	s.emit(ctx, sid, audit.EventStepSkipped, func(e *audit.Event) {
		e.Source = string(source)
		e.Reason = "user_skipped"
	})
	return m.View(), nil
}

// CaptureUSSD analyzes a mobile-money screenshot against the confirmed
// document name. The machine advances whether or not the analyzer answered;
// an answered capture registers the ussd_capture proof, verified when the
// name matched. The screenshot is not retained.
//
// Errors: CodeNotFound, including a session torn down during analysis;
// CodeInvalidState outside ussd.
func (s *Service) CaptureUSSD(ctx context.Context, sid id.SessionID, shot certification.Screenshot) (CaptureResult, error) {
	sess, m, err := s.phoneFlow(sid)
	if err != nil {
		clear(shot.Data)
		return CaptureResult{}, err
	}
	ctx, span := s.span(ctx, "capture_ussd", sid)
	defer func() { tracing.End(span, err) }()

	res := s.phone.Capture(ctx, m, shot, sess.referenceName())
	if res.IsFailed() {
		err = res.Err
		return CaptureResult{View: m.View(), Status: res.Status, Reason: res.Reason}, err
	}

	info := device.FromContext(ctx)
	s.emit(ctx, sid, audit.EventVisualCapture, func(e *audit.Event) {
		e.Source = string(registry.SourceUSSDCapture)
		e.Outcome = string(res.Status)
		e.Reason = res.Reason
		e.Attributes = map[string]string{"device_class": info.Class, "device_os": info.OS}
	})

	view := m.View()
	if view.Proofs.USSDCaptured {
		src := registry.Source{
			Type:        registry.SourceUSSDCapture,
			Verified:    view.Proofs.NameMatched,
			DetailScore: view.NameMatchScore,
		}
		if _, err = s.register(ctx, sess, src, m); err != nil {
			return CaptureResult{}, err
		}
	}
	return CaptureResult{View: view, Status: res.Status, Reason: res.Reason}, nil
}

// CompletePhone freezes the certification, stores the pseudonymized result,
// republishes the snapshot and notifies the scoring feed. Storage and feed
// failures are logged; the frozen result is still returned.
//
// Errors: CodeNotFound; CodeInvalidState outside validation.
func (s *Service) CompletePhone(ctx context.Context, sid id.SessionID) (certification.Result, error) {
	sess, m, err := s.phoneFlow(sid)
	if err != nil {
		return certification.Result{}, err
	}
	ctx, span := s.span(ctx, "complete_phone", sid)
	defer func() { tracing.End(span, err) }()

	res, err := s.phone.Complete(ctx, m)
	if err != nil {
		return certification.Result{}, err
	}
	sess.mu.Lock()
	sess.phoneResult = &res
	sess.mu.Unlock()

	phoneHash := s.hasher.Hash(res.PhoneNumber.String())
	if serr := s.results.Save(ctx, results.NewRecord(sid, res, phoneHash)); serr != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to store phone certification", "session_id", sid.String(), "error", serr)
	}

	snap := sess.registry.Snapshot()
	s.publish(ctx, sid, snap)
	score := res.TrustScore
	s.notify(ctx, certificate.Event{
		Type:                 certificate.EventPhoneCertified,
		SessionID:            sid.String(),
		PhoneHash:            phoneHash,
		ProofLevel:           res.ProofLevel,
		TrustScore:           &score,
		CertaintyCoefficient: snap.CertaintyCoefficient,
		VerifiedSources:      snap.Verified(),
		OccurredAt:           res.CertifiedAt,
	})
	s.emit(ctx, sid, audit.EventPhoneCertified, func(e *audit.Event) {
		e.Outcome = string(res.ProofLevel)
		e.SubjectIDHash = phoneHash
	})
	return res, nil
}

// withdraw republishes the snapshot after proofs of a replaced phone flow
// were removed.
func (s *Service) withdraw(ctx context.Context, sess *Session, types []registry.SourceType) {
	for _, t := range types {
		s.emit(ctx, sess.ID, audit.EventProofWithdrawn, func(e *audit.Event) {
			e.Source = string(t)
			e.Reason = "phone_replaced"
		})
	}
	s.publish(ctx, sess.ID, sess.registry.Snapshot())
}

func (s *Service) phoneFlow(sid id.SessionID) (*Session, *certification.Machine, error) {
	sess, err := s.get(sid)
	if err != nil {
		return nil, nil, err
	}
	m := sess.machine()
	if m == nil {
		return nil, nil, dErrors.New(dErrors.CodeNotFound, "phone certification not started")
	}
	return sess, m, nil
}

func (s *Service) auditOTPSent(ctx context.Context, sid id.SessionID, m *certification.Machine) {
	s.emit(ctx, sid, audit.EventOTPSent, func(e *audit.Event) {
		e.Source = string(registry.SourceOTP)
		e.SubjectIDHash = s.hasher.Hash(m.Phone().String())
	})
}

// notify publishes a feed event. Failures are logged.
func (s *Service) notify(ctx context.Context, e certificate.Event) {
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ctx, e); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to publish certification event",
			"session_id", e.SessionID,
			"event_type", string(e.Type),
			"error", err,
		)
	}
}
