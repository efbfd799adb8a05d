package certification

import (
	"context"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"certproof/internal/phone/namematch"
	"certproof/internal/platform/tracing"
	id "certproof/pkg/domain"
	dErrors "certproof/pkg/domain-errors"
	"certproof/pkg/platform/collaborator"
	"certproof/pkg/platform/outcome"
)

// Degraded capture reasons.
const (
	ReasonAnalyzerDisabled = "analyzer_disabled"
	ReasonNoReferenceName  = "no_reference_name"
)

// Dispatch is what the OTP service reports for a sent code.
type Dispatch struct {
	MaskedPhone string
	ExpiresIn   time.Duration
}

// OTPService delivers and verifies one-time codes.
type OTPService interface {
	Send(ctx context.Context, phone id.PhoneNumber, purpose string) (Dispatch, error)
	Verify(ctx context.Context, phone id.PhoneNumber, code, purpose string) (bool, error)
}

// VisualAnalyzer reads the account holder name from a mobile-money profile
// screenshot. Implementations must not persist the image.
type VisualAnalyzer interface {
	Analyze(ctx context.Context, screenshot Screenshot, referenceName string) (Capture, error)
}

// Screenshot is an uploaded image held only for the duration of analysis.
type Screenshot struct {
	Data      []byte
	MediaType string
}

// Observer receives certification outcomes. Satisfied by the phone metrics.
type Observer interface {
	IncrementOTP(outcome string)
	IncrementCapture(status, reason string)
	ObserveCompletion(level string, score int)
}

// Service runs collaborator calls for machines it is handed.
type Service struct {
	otp      OTPService
	visual   VisualAnalyzer
	purpose  string
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
	tracer   trace.Tracer
	sends    singleflight.Group
}

type Option func(*Service)

func WithVisualAnalyzer(v VisualAnalyzer) Option {
	return func(s *Service) { s.visual = v }
}

// WithPurpose sets the purpose sent with every OTP call.
func WithPurpose(purpose string) Option {
	return func(s *Service) { s.purpose = purpose }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(otp OTPService, opts ...Option) *Service {
	s := &Service{
		otp:     otp,
		purpose: "phone_certification",
		now:     time.Now,
		tracer:  tracing.Tracer("certification"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dispatch sends the first code when the machine is in otp and none is out.
// Concurrent dispatches for the same number share one delivery.
//
// Errors: CodeUnavailable when delivery fails; the machine stays in otp.
func (s *Service) Dispatch(ctx context.Context, m *Machine) error {
	if !m.NeedsDispatch() {
		return nil
	}
	return s.send(ctx, m, false)
}

// Resend invalidates the code in flight and sends a new one.
//
// Errors: CodeInvalidState outside otp; CodeUnavailable when delivery fails.
func (s *Service) Resend(ctx context.Context, m *Machine) error {
	if st := m.State(); st != StateOTP {
		return invalidState(st, "resend a code")
	}
	return s.send(ctx, m, true)
}

func (s *Service) send(ctx context.Context, m *Machine, resend bool) error {
	ctx, span := tracing.Start(ctx, s.tracer, "certification.otp_send", "resend", boolString(resend))
	key := m.Phone().String() + "|" + s.purpose
	if resend {
		s.sends.Forget(key)
	}
	v, err, _ := s.sends.Do(key, func() (any, error) {
		return s.otp.Send(ctx, m.Phone(), s.purpose)
	})
	if err != nil {
		s.recordOTP(ctx, "send_failed", err)
		tracing.End(span, err)
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "could not send code")
	}
	d := v.(Dispatch)
	err = m.RecordDispatch(d.MaskedPhone, d.ExpiresIn, s.now(), resend)
	if err == nil {
		s.recordOTP(ctx, "sent", nil)
	}
	tracing.End(span, err)
	return err
}

// Verify checks a code. Local checks run first, so an expired code never
// reaches the service.
//
// Errors: CodeValidation for a malformed or rejected code; CodeExpired;
// CodeInvalidState; CodeUnavailable when the service cannot be reached.
func (s *Service) Verify(ctx context.Context, m *Machine, code string) error {
	code, err := m.CheckCode(code, s.now())
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeExpired) {
			s.recordOTP(ctx, "expired", nil)
		}
		return err
	}

	ctx, span := tracing.Start(ctx, s.tracer, "certification.otp_verify")
	ok, err := s.otp.Verify(ctx, m.Phone(), code, s.purpose)
	tracing.End(span, err)
	if err != nil {
		s.recordOTP(ctx, "verify_failed", err)
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "could not verify code")
	}
	if !ok {
		s.recordOTP(ctx, "rejected", nil)
	}
	if err := m.RecordVerification(ok); err != nil {
		return err
	}
	s.recordOTP(ctx, "verified", nil)
	return nil
}

// Capture analyzes a screenshot against the identity name and advances to
// validation. The screenshot buffer is zeroed before returning.
//
// The result is Ok when the analyzer answered and the name could be scored,
// Degraded otherwise; in both cases the machine has moved on. Only a machine
// outside ussd yields a failed result.
func (s *Service) Capture(ctx context.Context, m *Machine, shot Screenshot, referenceName string) outcome.Result[Capture] {
	defer clear(shot.Data)

	if st := m.State(); st != StateUSSD {
		return outcome.Failed[Capture](invalidState(st, "capture a screenshot"))
	}

	c, answered, reason := s.analyze(ctx, shot, referenceName)
	var capture *Capture
	if answered {
		capture = &c
	}
	if err := m.RecordCapture(capture); err != nil {
		return outcome.Failed[Capture](err)
	}

	res := outcome.Ok(c)
	if reason != "" {
		res = outcome.Degraded(c, reason)
	}
	if s.observer != nil {
		s.observer.IncrementCapture(string(res.Status), res.Reason)
	}
	return res
}

// analyze reports whether the analyzer answered, and a degraded reason when
// the capture is missing or could not be scored.
func (s *Service) analyze(ctx context.Context, shot Screenshot, referenceName string) (Capture, bool, string) {
	if s.visual == nil {
		return Capture{}, false, ReasonAnalyzerDisabled
	}

	ctx, span := tracing.Start(ctx, s.tracer, "certification.visual_analyze")
	c, err := s.visual.Analyze(ctx, shot, referenceName)
	tracing.End(span, err)
	if err != nil {
		reason := "analyzer_" + string(collaborator.GetCategory(err))
		if s.logger != nil {
			s.logger.WarnContext(ctx, "visual analysis failed, proofs stay false", "reason", reason, "error", err)
		}
		return Capture{}, false, reason
	}

	switch {
	case c.MatchScore != nil:
		score := clampScore(*c.MatchScore)
		c.MatchScore = &score
	case c.ExtractedName != nil && referenceName == "":
		return c, true, ReasonNoReferenceName
	case c.ExtractedName != nil:
		score := namematch.Score(*c.ExtractedName, referenceName)
		c.MatchScore = &score
	}
	return c, true, ""
}

// Complete freezes the certification.
//
// Errors: CodeInvalidState outside validation.
func (s *Service) Complete(ctx context.Context, m *Machine) (Result, error) {
	res, err := m.Complete(s.now())
	if err != nil {
		return Result{}, err
	}
	if s.observer != nil {
		s.observer.ObserveCompletion(string(res.ProofLevel), res.TrustScore)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "phone certification completed",
			"proof_level", res.ProofLevel,
			"trust_score", res.TrustScore,
		)
	}
	return res, nil
}

func (s *Service) recordOTP(ctx context.Context, result string, err error) {
	if s.observer != nil {
		s.observer.IncrementOTP(result)
	}
	if err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "otp call failed",
			"result", result,
			"retryable", collaborator.IsRetryable(err),
			"error", err,
		)
	}
}

func clampScore(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
