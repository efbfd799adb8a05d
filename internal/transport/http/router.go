// Package httptransport exposes verification sessions over HTTP.
package httptransport

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"certproof/internal/platform/metrics"
	"certproof/pkg/platform/httputil"
	"certproof/pkg/platform/middleware/device"
	"certproof/pkg/platform/middleware/metadata"
	"certproof/pkg/platform/middleware/requesttime"
)

// Check is a named dependency probe run by /health.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// NewRouter wires the session endpoints behind the shared middleware chain
// and adds the health and metrics endpoints. m may be nil.
func NewRouter(h *Handler, m *metrics.Metrics, checks ...Check) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metadata.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(device.Middleware)
	r.Use(instrument(m))

	r.Get("/health", health(checks))
	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}
	h.Register(r)
	return r
}

// instrument records request latency by route pattern so ids never become
// label values.
func instrument(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.ObserveRequest(r.Method+" "+route, status, time.Since(start))
		})
	}
}

// health reports "ok", or 503 with the failing dependencies.
func health(checks []Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		failing := map[string]string{}
		for _, c := range checks {
			if err := c.Probe(ctx); err != nil {
				failing[c.Name] = err.Error()
			}
		}
		if len(failing) > 0 {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "failing": failing})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
