// Package certificate hands certification outputs to the external
// certificate and scoring service.
package certificate

import (
	"context"
	"time"

	"certproof/internal/document/extraction"
	"certproof/internal/phone/certification"
	"certproof/internal/proof/registry"
)

// Request is everything the scoring service consumes for one session.
type Request struct {
	SessionID            string                `json:"session_id"`
	Snapshot             registry.Snapshot     `json:"snapshot"`
	Identity             *extraction.Confirmed `json:"identity,omitempty"`
	Phone                *certification.Result `json:"phone,omitempty"`
	Attestation          string                `json:"attestation"`
	AttestationExpiresAt time.Time             `json:"attestation_expires_at"`
	RequestedAt          time.Time             `json:"requested_at"`
}

// Response is the lifecycle metadata returned by the scoring service. Its
// score and grade are opaque to this core.
type Response struct {
	CertificateID string    `json:"certificate_id"`
	Score         *float64  `json:"score,omitempty"`
	Grade         string    `json:"grade,omitempty"`
	TrustBadge    string    `json:"trust_badge,omitempty"`
	IssuedAt      time.Time `json:"issued_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Issuer is the certificate/scoring service.
type Issuer interface {
	Issue(ctx context.Context, req Request) (Response, error)
}

// EventType names a feed event.
type EventType string

const (
	EventPhoneCertified       EventType = "phone_certified"
	EventCertificateRequested EventType = "certificate_requested"
)

// Event is published on the certification feed. It carries no raw
// identifiers.
type Event struct {
	Type                 EventType                `json:"type"`
	SessionID            string                   `json:"session_id"`
	PhoneHash            string                   `json:"phone_hash,omitempty"`
	ProofLevel           certification.ProofLevel `json:"proof_level,omitempty"`
	TrustScore           *int                     `json:"trust_score,omitempty"`
	CertaintyCoefficient float64                  `json:"certainty_coefficient"`
	VerifiedSources      []registry.SourceType    `json:"verified_sources"`
	OccurredAt           time.Time                `json:"occurred_at"`
}
