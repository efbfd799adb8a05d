package registry

import (
	"time"

	dErrors "certproof/pkg/domain-errors"
)

// SourceType is one category of proof.
type SourceType string

const (
	SourceOTP         SourceType = "otp"
	SourceUSSDCapture SourceType = "ussd_capture"
	SourceSMSAnalysis SourceType = "sms_analysis"
	SourceDocumentOCR SourceType = "document_ocr"
	SourceGuarantor   SourceType = "guarantor"
)

// Reliability weights per source type.
var weights = map[SourceType]float64{
	SourceOTP:         0.9,
	SourceUSSDCapture: 0.85,
	SourceSMSAnalysis: 0.9,
	SourceDocumentOCR: 0.8,
	SourceGuarantor:   0.7,
}

// order is the canonical listing order of snapshots.
var order = []SourceType{SourceDocumentOCR, SourceOTP, SourceUSSDCapture, SourceSMSAnalysis, SourceGuarantor}

// Weight returns the reliability weight of t, or 0 for an unknown type.
func Weight(t SourceType) float64 { return weights[t] }

// TotalWeight is the sum of all source weights.
func TotalWeight() float64 {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	return total
}

func (t SourceType) IsValid() bool {
	_, ok := weights[t]
	return ok
}

// ParseSourceType validates a source type name.
//
// Errors: CodeValidation for an unknown type.
func ParseSourceType(s string) (SourceType, error) {
	t := SourceType(s)
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unknown proof source "+s)
	}
	return t, nil
}

// Source is one registered proof. DetailScore carries a stage-specific value
// such as OCR confidence or name-match score.
type Source struct {
	Type         SourceType `json:"type"`
	Weight       float64    `json:"weight"`
	Verified     bool       `json:"verified"`
	DetailScore  *float64   `json:"detail_score,omitempty"`
	RegisteredAt time.Time  `json:"registered_at"`
}

// Snapshot is a read-only aggregate of a registry.
type Snapshot struct {
	Sources              []Source `json:"sources"`
	CertaintyCoefficient float64  `json:"certainty_coefficient"`
	// EvidenceReliability is the display split of verified against
	// declarative sources.
	EvidenceReliability float64 `json:"evidence_reliability"`
}

// Verified lists the types of the verified sources in canonical order.
func (s Snapshot) Verified() []SourceType {
	var out []SourceType
	for _, src := range s.Sources {
		if src.Verified {
			out = append(out, src.Type)
		}
	}
	return out
}
