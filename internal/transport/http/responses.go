package httptransport

import (
	"time"

	"certproof/internal/certificate"
	"certproof/internal/document/extraction"
	"certproof/internal/document/pipeline"
	"certproof/internal/phone/certification"
	"certproof/internal/proof/registry"
	"certproof/internal/session"
)

type SessionResponse struct {
	SessionID   string                   `json:"session_id"`
	CreatedAt   time.Time                `json:"created_at"`
	Snapshot    registry.Snapshot        `json:"snapshot"`
	Identity    *extraction.Confirmed    `json:"identity,omitempty"`
	Phone       *certification.Result    `json:"phone,omitempty"`
	Certificate *certificate.Response    `json:"certificate,omitempty"`
}

func FromSession(v session.View) SessionResponse {
	return SessionResponse{
		SessionID:   v.ID.String(),
		CreatedAt:   v.CreatedAt,
		Snapshot:    withSources(v.Snapshot),
		Identity:    v.Identity,
		Phone:       v.Phone,
		Certificate: v.Certificate,
	}
}

// withSources renders an empty registry as [] rather than null.
func withSources(s registry.Snapshot) registry.Snapshot {
	if s.Sources == nil {
		s.Sources = []registry.Source{}
	}
	return s
}

// DocumentResponse is the status of the current document. Applied
// preprocessing steps are diagnostics and stay server-side.
type DocumentResponse struct {
	DocumentToken  string                `json:"document_token"`
	DocumentType   string                `json:"document_type"`
	Status         string                `json:"status"`
	SlowAnalysis   bool                  `json:"slow_analysis"`
	Attempt        int                   `json:"attempt"`
	Extraction     string                `json:"extraction,omitempty"`
	Simplified     bool                  `json:"simplified"`
	Fields         *extraction.Fields    `json:"fields,omitempty"`
	Review         *extraction.Review    `json:"review,omitempty"`
	Confirmed      *extraction.Confirmed `json:"confirmed,omitempty"`
	Failure        string                `json:"failure,omitempty"`
	SubmittedAt    time.Time             `json:"submitted_at"`
	CompletedAt    *time.Time            `json:"completed_at,omitempty"`
}

func FromDocument(d pipeline.Document) DocumentResponse {
	resp := DocumentResponse{
		DocumentToken: d.Token.String(),
		DocumentType:  d.Type.String(),
		Status:        string(d.Status),
		SlowAnalysis:  d.SlowAnalysis,
		Attempt:       d.Attempt,
		Confirmed:     d.Confirmed,
		Failure:       d.Failure,
		SubmittedAt:   d.SubmittedAt,
	}
	if !d.CompletedAt.IsZero() {
		completed := d.CompletedAt
		resp.CompletedAt = &completed
	}
	if d.Status == pipeline.StatusReady || d.Status == pipeline.StatusConfirmed {
		fields, review := d.Fields, d.Review
		resp.Fields = &fields
		resp.Review = &review
		resp.Extraction = string(d.Extraction)
		resp.Simplified = d.DegradedReason != ""
	}
	if d.Status == pipeline.StatusFailed {
		resp.Failure = "document could not be read, retry with another photo"
	}
	return resp
}

type ConfirmDocumentResponse struct {
	Confirmed extraction.Confirmed `json:"confirmed"`
	Snapshot  registry.Snapshot    `json:"snapshot"`
}

// PhoneResponse is the phone certification state.
type PhoneResponse struct {
	State          string                `json:"state"`
	MaskedPhone    string                `json:"masked_phone"`
	Proofs         certification.Proofs  `json:"proofs"`
	TrustScore     int                   `json:"trust_score"`
	ProofLevel     string                `json:"proof_level"`
	OTP            *OTPResponse          `json:"otp,omitempty"`
	ExtractedName  *string               `json:"extracted_name,omitempty"`
	NameMatchScore *float64              `json:"name_match_score,omitempty"`
	Result         *certification.Result `json:"result,omitempty"`
}

type OTPResponse struct {
	MaskedPhone string    `json:"masked_phone"`
	ExpiresAt   time.Time `json:"expires_at"`
	Attempt     int       `json:"attempt"`
}

func FromPhone(v certification.View) PhoneResponse {
	resp := PhoneResponse{
		State:          string(v.State),
		MaskedPhone:    v.PhoneNumber.Masked(),
		Proofs:         v.Proofs,
		TrustScore:     v.TrustScore,
		ProofLevel:     string(v.ProofLevel),
		ExtractedName:  v.ExtractedName,
		NameMatchScore: v.NameMatchScore,
		Result:         v.Result,
	}
	if v.OTP.Sent {
		resp.OTP = &OTPResponse{
			MaskedPhone: v.OTP.MaskedPhone,
			ExpiresAt:   v.OTP.ExpiresAt,
			Attempt:     v.OTP.Attempt,
		}
	}
	return resp
}

type CaptureResponse struct {
	PhoneResponse
	Analysis string `json:"analysis"`
	Reason   string `json:"reason,omitempty"`
}

func FromCapture(c session.CaptureResult) CaptureResponse {
	return CaptureResponse{
		PhoneResponse: FromPhone(c.View),
		Analysis:      string(c.Status),
		Reason:        c.Reason,
	}
}
