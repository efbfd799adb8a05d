// Package device classifies the capture device from the User-Agent. The
// class is recorded on visual-proof audit events; raw User-Agent strings are not.
package device

import (
	"context"
	"net/http"

	"github.com/mssola/useragent"

	"certproof/pkg/requestcontext"
)

// Info is a coarse description of the client device.
type Info struct {
	Class   string // mobile, desktop, bot or unknown
	OS      string
	Browser string
}

type contextKeyDevice struct{}

// Classify parses a User-Agent string.
func Classify(userAgent string) Info {
	if userAgent == "" {
		return Info{Class: "unknown"}
	}
	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	info := Info{OS: ua.OS(), Browser: browser}
	switch {
	case ua.Bot():
		info.Class = "bot"
	case ua.Mobile():
		info.Class = "mobile"
	default:
		info.Class = "desktop"
	}
	return info
}

// Middleware classifies the request User-Agent once and stores the result.
// It reads the value captured by metadata.ClientMetadata when present.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := requestcontext.UserAgent(r.Context())
		if ua == "" {
			ua = r.Header.Get("User-Agent")
		}
		ctx := WithInfo(r.Context(), Classify(ua))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext returns the device info, or Class "unknown" when unset.
func FromContext(ctx context.Context) Info {
	if info, ok := ctx.Value(contextKeyDevice{}).(Info); ok {
		return info
	}
	return Info{Class: "unknown"}
}

// WithInfo injects device info. Useful for service tests that skip middleware.
func WithInfo(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, contextKeyDevice{}, info)
}
