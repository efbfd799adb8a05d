// Package results persists completed phone certifications. Raw phone
// numbers are never stored, only the keyed hash and the masked form.
package results

import (
	"context"
	"time"

	"github.com/google/uuid"

	"certproof/internal/phone/certification"
	id "certproof/pkg/domain"
)

// Record is one frozen certification.
type Record struct {
	ID             uuid.UUID
	SessionID      id.SessionID
	PhoneHash      string
	PhoneMasked    string
	ProofLevel     certification.ProofLevel
	TrustScore     int
	Proofs         certification.Proofs
	NameMatchScore *float64
	CertifiedAt    time.Time
}

// NewRecord pseudonymizes res with phoneHash.
func NewRecord(sessionID id.SessionID, res certification.Result, phoneHash string) Record {
	return Record{
		ID:             uuid.New(),
		SessionID:      sessionID,
		PhoneHash:      phoneHash,
		PhoneMasked:    res.PhoneNumber.Masked(),
		ProofLevel:     res.ProofLevel,
		TrustScore:     res.TrustScore,
		Proofs:         res.Proofs,
		NameMatchScore: res.NameMatchScore,
		CertifiedAt:    res.CertifiedAt,
	}
}

// Repository stores records. Lookups return sentinel.ErrNotFound when empty.
type Repository interface {
	Save(ctx context.Context, r Record) error
	FindBySession(ctx context.Context, sessionID id.SessionID) (Record, error)
	ListByPhoneHash(ctx context.Context, phoneHash string) ([]Record, error)
}
