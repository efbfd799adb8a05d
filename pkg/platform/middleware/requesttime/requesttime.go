// Package requesttime pins one "now" per HTTP request so audit timestamps,
// OTP expiry checks and certified_at agree within a request.
package requesttime

import (
	"net/http"
	"time"

	"certproof/pkg/requestcontext"
)

// Middleware stores the request start time with requestcontext.WithTime.
func Middleware(next http.Handler) http.Handler {
	return MiddlewareWithClock(time.Now)(next)
}

// MiddlewareWithClock is Middleware with an injectable clock.
func MiddlewareWithClock(now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestcontext.WithTime(r.Context(), now())))
		})
	}
}
