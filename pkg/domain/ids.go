package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "certproof/pkg/domain-errors"
)

// SessionID identifies one verification session. The session owns its proof
// registry and is the token that late results are checked against.
type SessionID uuid.UUID

// DocumentToken identifies one document submission inside a session. A new
// submission replaces the token, making results for the old one stale.
type DocumentToken uuid.UUID

func NewSessionID() SessionID { return SessionID(uuid.New()) }
func NewDocumentToken() DocumentToken { return DocumentToken(uuid.New()) }

func (id SessionID) String() string { return uuid.UUID(id).String() }
func (id SessionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (t DocumentToken) String() string { return uuid.UUID(t).String() }
func (t DocumentToken) IsNil() bool { return uuid.UUID(t) == uuid.Nil }

// ParseSessionID parses a session id at a trust boundary.
//
// Errors: CodeInvalidInput when the value is empty, malformed or the nil UUID.
func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID(s, "session_id")
	return SessionID(u), err
}

// ParseDocumentToken parses a document token at a trust boundary.
//
// Errors: CodeInvalidInput when the value is empty, malformed or the nil UUID.
func ParseDocumentToken(s string) (DocumentToken, error) {
	u, err := parseUUID(s, "document_token")
	return DocumentToken(u), err
}

func parseUUID(s, field string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" cannot be empty")
	}
	if len(s) > 36 {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+field)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+field)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" cannot be nil")
	}
	return u, nil
}
