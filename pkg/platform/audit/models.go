package audit

import (
	"context"
	"time"

	id "certproof/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies and routing.
type EventCategory string

const (
	// CategoryCompliance covers events that feed a credit certificate; they
	// must be reconstructible when a certificate is disputed.
	// Examples: document confirmation, phone certification, certificate requests.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to fraud monitoring.
	// Examples: OTP mismatches, stale-result discards.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging and visibility.
	// Examples: OTP dispatch, degraded extraction, step skips.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	SessionID id.SessionID
	Action    string
	// Source names the proof source involved, when any (otp, document_ocr, ...).
	Source string
	// Outcome is "ok", "degraded" or "failed" for stage events, or a proof level.
	Outcome string
	Reason  string
	// SubjectIDHash is a keyed hash of the phone or document number under
	// evaluation. Raw numbers never enter the audit trail.
	SubjectIDHash string
	RequestID     string
	// Attributes carries small, non-identifying details (document type, capture device).
	Attributes map[string]string
}

type AuditEvent string

const (
	// Session events
	EventSessionStarted   AuditEvent = "session_started"
	EventSessionClosed    AuditEvent = "session_closed"
	EventSessionAbandoned AuditEvent = "session_abandoned"

	// Document events
	EventDocumentSubmitted AuditEvent = "document_submitted"
	EventDocumentAnalyzed  AuditEvent = "document_analyzed"
	EventDocumentFailed    AuditEvent = "document_failed"
	EventDocumentConfirmed AuditEvent = "document_confirmed"
	EventDocumentCancelled AuditEvent = "document_cancelled"
	EventStaleResult       AuditEvent = "stale_result_discarded"

	// Phone events
	EventOTPSent        AuditEvent = "otp_sent"
	EventOTPVerified    AuditEvent = "otp_verified"
	EventOTPRejected    AuditEvent = "otp_rejected"
	EventStepSkipped    AuditEvent = "certification_step_skipped"
	EventVisualCapture  AuditEvent = "visual_proof_captured"
	EventPhoneCertified AuditEvent = "phone_certified"

	// Proof events
	EventProofRegistered      AuditEvent = "proof_registered"
	EventProofWithdrawn       AuditEvent = "proof_withdrawn"
	EventCertificateRequested AuditEvent = "certificate_requested"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventDocumentConfirmed:    CategoryCompliance,
	EventPhoneCertified:       CategoryCompliance,
	EventProofRegistered:      CategoryCompliance,
	EventProofWithdrawn:       CategoryCompliance,
	EventCertificateRequested: CategoryCompliance,

	EventOTPRejected: CategorySecurity,
	EventStaleResult: CategorySecurity,

	EventSessionStarted:    CategoryOperations,
	EventSessionClosed:     CategoryOperations,
	EventSessionAbandoned:  CategoryOperations,
	EventDocumentSubmitted: CategoryOperations,
	EventDocumentAnalyzed:  CategoryOperations,
	EventDocumentFailed:    CategoryOperations,
	EventDocumentCancelled: CategoryOperations,
	EventOTPSent:           CategoryOperations,
	EventOTPVerified:       CategoryOperations,
	EventStepSkipped:       CategoryOperations,
	EventVisualCapture:     CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// NewEvent builds an Event with its category resolved from the action.
func NewEvent(sessionID id.SessionID, action AuditEvent) Event {
	return Event{
		Category:  action.Category(),
		SessionID: sessionID,
		Action:    string(action),
	}
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySession(ctx context.Context, sessionID id.SessionID) ([]Event, error)
}
