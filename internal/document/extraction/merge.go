package extraction

import (
	"fmt"
	"strings"

	"certproof/internal/document/ocr"
)

// rawAliases are the raw_fields keys consulted for each field, in order.
var rawAliases = map[string][]string{
	FieldFullName:       {"full_name", "name", "nom_complet"},
	FieldDateOfBirth:    {"birth_date", "date_of_birth", "date_naissance"},
	FieldDocumentNumber: {"document_number", "numero_document"},
	FieldExpiryDate:     {"expiry_date", "date_expiration"},
	FieldNationality:    {"nationality", "nationalite"},
	FieldGender:         {"gender", "sex", "sexe"},
	FieldPlaceOfBirth:   {"place_of_birth", "birth_place", "lieu_naissance"},
}

// Merge builds Fields from a service response. A top-level value beats the
// same field in raw_fields. Confidence is extraction_confidence, then
// overall_confidence, then the OCR confidence.
func Merge(resp AnalysisResponse, ocrConfidence float64) Fields {
	top := map[string]*string{
		FieldFullName:       resp.FullName,
		FieldDateOfBirth:    resp.BirthDate,
		FieldDocumentNumber: resp.DocumentNumber,
		FieldExpiryDate:     resp.ExpiryDate,
		FieldNationality:    resp.Nationality,
		FieldGender:         resp.Gender,
		FieldPlaceOfBirth:   resp.PlaceOfBirth,
	}

	var f Fields
	for _, name := range FieldNames() {
		if v := top[name]; v != nil && strings.TrimSpace(*v) != "" {
			f.Set(name, *v)
			continue
		}
		if v, ok := rawValue(resp.RawFields, rawAliases[name]); ok {
			f.Set(name, v)
		}
	}

	switch {
	case resp.ExtractionConfidence != nil:
		f.Confidence = ocr.ClampConfidence(*resp.ExtractionConfidence)
	case resp.OverallConfidence != nil:
		f.Confidence = ocr.ClampConfidence(*resp.OverallConfidence)
	default:
		f.Confidence = ocr.ClampConfidence(ocrConfidence)
	}

	f.MRZValidated = deref(resp.MRZValidated)
	f.IsUEMOA = deref(resp.IsUEMOA)
	f.IsCEDEAO = deref(resp.IsCEDEAO)
	return f
}

func rawValue(raw map[string]any, keys []string) (string, bool) {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case float64, bool:
			s = fmt.Sprint(t)
		default:
			continue
		}
		if strings.TrimSpace(s) != "" {
			return s, true
		}
	}
	return "", false
}

func deref(b *bool) bool {
	return b != nil && *b
}
