package testutil

import (
	"net/http"

	id "certproof/pkg/domain"
	"certproof/pkg/requestcontext"
)

// WithSessionID attaches a parsed session ID to the request context.
// Invalid IDs are ignored so tests can exercise the missing-session path.
func WithSessionID(req *http.Request, sessionID string) *http.Request {
	parsed, err := id.ParseSessionID(sessionID)
	if err != nil {
		return req
	}
	return req.WithContext(requestcontext.WithSessionID(req.Context(), parsed))
}

// WithClient sets the client IP and user agent as the HTTP middleware would.
func WithClient(req *http.Request, ip, userAgent string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, userAgent))
}
