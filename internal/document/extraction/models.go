package extraction

import "strings"

// Field names used in corrections, raw_fields lookups and audit attributes.
const (
	FieldFullName       = "full_name"
	FieldDateOfBirth    = "date_of_birth"
	FieldDocumentNumber = "document_number"
	FieldExpiryDate     = "expiry_date"
	FieldNationality    = "nationality"
	FieldGender         = "gender"
	FieldPlaceOfBirth   = "place_of_birth"
)

// Fields are the structured identity attributes of one document. Every
// attribute is independently nil when not found; empty strings never appear.
type Fields struct {
	FullName       *string `json:"full_name,omitempty"`
	DateOfBirth    *string `json:"date_of_birth,omitempty"`
	DocumentNumber *string `json:"document_number,omitempty"`
	ExpiryDate     *string `json:"expiry_date,omitempty"`
	Nationality    *string `json:"nationality,omitempty"`
	Gender         *string `json:"gender,omitempty"`
	PlaceOfBirth   *string `json:"place_of_birth,omitempty"`

	// Confidence is 0..100.
	Confidence   float64 `json:"extraction_confidence"`
	MRZValidated bool    `json:"mrz_validated"`
	IsUEMOA      bool    `json:"is_uemoa"`
	IsCEDEAO     bool    `json:"is_cedeao"`
}

// Get returns the value of a named field, if set.
func (f Fields) Get(name string) (string, bool) {
	p := f.ptr(name)
	if p == nil || *p == nil {
		return "", false
	}
	return **p, true
}

// Set assigns a named field. Blank values clear it. Unknown names return false.
func (f *Fields) Set(name, value string) bool {
	p := f.ptr(name)
	if p == nil {
		return false
	}
	*p = optional(value)
	return true
}

func (f *Fields) ptr(name string) **string {
	switch name {
	case FieldFullName:
		return &f.FullName
	case FieldDateOfBirth:
		return &f.DateOfBirth
	case FieldDocumentNumber:
		return &f.DocumentNumber
	case FieldExpiryDate:
		return &f.ExpiryDate
	case FieldNationality:
		return &f.Nationality
	case FieldGender:
		return &f.Gender
	case FieldPlaceOfBirth:
		return &f.PlaceOfBirth
	default:
		return nil
	}
}

// FieldNames lists the identity attributes in display order.
func FieldNames() []string {
	return []string{
		FieldFullName, FieldDateOfBirth, FieldDocumentNumber, FieldExpiryDate,
		FieldNationality, FieldGender, FieldPlaceOfBirth,
	}
}

// fillMissing copies fields set in src that are nil in f.
func (f *Fields) fillMissing(src Fields) {
	for _, name := range FieldNames() {
		if _, ok := f.Get(name); ok {
			continue
		}
		if v, ok := src.Get(name); ok {
			f.Set(name, v)
		}
	}
}

// AnalysisRequest is sent to the document-analysis service.
type AnalysisRequest struct {
	OCRText       string  `json:"ocr_text"`
	DocumentType  string  `json:"document_type"`
	OCRConfidence float64 `json:"ocr_confidence"`
}

// AnalysisResponse is the document-analysis service reply. Every member is optional.
type AnalysisResponse struct {
	FullName       *string `json:"full_name,omitempty"`
	BirthDate      *string `json:"birth_date,omitempty"`
	DocumentNumber *string `json:"document_number,omitempty"`
	ExpiryDate     *string `json:"expiry_date,omitempty"`
	Nationality    *string `json:"nationality,omitempty"`
	Gender         *string `json:"gender,omitempty"`
	PlaceOfBirth   *string `json:"place_of_birth,omitempty"`

	MRZValidated         *bool    `json:"mrz_validated,omitempty"`
	IsUEMOA              *bool    `json:"is_uemoa,omitempty"`
	IsCEDEAO             *bool    `json:"is_cedeao,omitempty"`
	ExtractionConfidence *float64 `json:"extraction_confidence,omitempty"`
	OverallConfidence    *float64 `json:"overall_confidence,omitempty"`

	RawFields map[string]any `json:"raw_fields,omitempty"`
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
