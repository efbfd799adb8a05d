// Package metrics owns the process registry and the HTTP-level metrics that
// are not tied to a single module.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the registry and request-level instruments.
type Metrics struct {
	Registry *prometheus.Registry

	RequestDuration *prometheus.HistogramVec
	ActiveSessions  prometheus.Gauge
}

// New creates a fresh registry with Go and process collectors.
// Module metrics packages register against Registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certproof_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern and status class",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "certproof_active_sessions",
			Help: "Verification sessions currently held in memory",
		}),
	}
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// ObserveRequest records one request.
func (m *Metrics) ObserveRequest(route string, status int, d time.Duration) {
	if m != nil {
		m.RequestDuration.WithLabelValues(route, statusClass(status)).Observe(d.Seconds())
	}
}

// SetActiveSessions sets the in-memory session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	if m != nil {
		m.ActiveSessions.Set(float64(n))
	}
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
