package domain

import dErrors "certproof/pkg/domain-errors"

// DocumentType names the identity document a user photographed.
type DocumentType string

const (
	DocumentTypeNationalID      DocumentType = "cni"
	DocumentTypePassport        DocumentType = "passport"
	DocumentTypeResidencePermit DocumentType = "residence_permit"
	DocumentTypeDriverLicense   DocumentType = "driver_license"
	DocumentTypeVoterCard       DocumentType = "voter_card"
	DocumentTypeOther           DocumentType = "other"
)

var validDocumentTypes = map[DocumentType]bool{
	DocumentTypeNationalID:      true,
	DocumentTypePassport:        true,
	DocumentTypeResidencePermit: true,
	DocumentTypeDriverLicense:   true,
	DocumentTypeVoterCard:       true,
	DocumentTypeOther:           true,
}

// ParseDocumentType validates a document type from external input. An empty
// value defaults to the national identity card.
func ParseDocumentType(s string) (DocumentType, error) {
	if s == "" {
		return DocumentTypeNationalID, nil
	}
	t := DocumentType(s)
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unsupported document_type")
	}
	return t, nil
}

func (t DocumentType) IsValid() bool { return validDocumentTypes[t] }
func (t DocumentType) String() string { return string(t) }
