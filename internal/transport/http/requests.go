package httptransport

import (
	"strings"

	"certproof/internal/phone/certification"
	id "certproof/pkg/domain"
	dErrors "certproof/pkg/domain-errors"
)

// StartPhoneRequest is the body of POST /sessions/{id}/phone.
type StartPhoneRequest struct {
	PhoneNumber string `json:"phone_number"`

	parsedPhone id.PhoneNumber
}

// Validate implements httputil.Validatable.
func (r *StartPhoneRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.PhoneNumber) > 32 {
		return dErrors.New(dErrors.CodeValidation, "phone_number must be at most 32 characters")
	}
	phone, err := id.ParsePhoneNumber(r.PhoneNumber)
	if err != nil {
		return err
	}
	r.parsedPhone = phone
	return nil
}

func (r *StartPhoneRequest) ParsedPhone() id.PhoneNumber { return r.parsedPhone }

// VerifyOTPRequest is the body of POST /sessions/{id}/phone/otp/verify.
type VerifyOTPRequest struct {
	Code string `json:"code"`
}

func (r *VerifyOTPRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Code = strings.TrimSpace(r.Code)
	if r.Code == "" || len(r.Code) > certification.MaxCodeLength {
		return dErrors.New(dErrors.CodeValidation, "code must be 1 to 6 digits")
	}
	return nil
}

// ConfirmDocumentRequest is the body of POST .../documents/{token}/confirm.
// Corrections are keyed by field name, e.g. "full_name".
type ConfirmDocumentRequest struct {
	Corrections  map[string]string `json:"corrections,omitempty"`
	Acknowledged bool              `json:"acknowledged"`
}

func (r *ConfirmDocumentRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Corrections) > 16 {
		return dErrors.New(dErrors.CodeValidation, "too many corrections")
	}
	for field, value := range r.Corrections {
		if len(value) > 128 {
			return dErrors.New(dErrors.CodeValidation, field+" must be at most 128 characters")
		}
	}
	return nil
}
