package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers session lifecycle and certificate hand-off.
type Metrics struct {
	Started             prometheus.Counter
	Teardowns           *prometheus.CounterVec
	Certainty           prometheus.Histogram
	CertificateRequests *prometheus.CounterVec
	ProofRegistrations  *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Started: f.NewCounter(prometheus.CounterOpts{
			Name: "certproof_sessions_started_total",
			Help: "Verification sessions started",
		}),
		Teardowns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certproof_sessions_teardown_total",
			Help: "Sessions torn down by reason (closed, abandoned, shutdown)",
		}, []string{"reason"}),
		Certainty: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "certproof_session_certainty_coefficient",
			Help:    "Certainty coefficient of snapshots handed to the certificate service",
			Buckets: []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		}),
		CertificateRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certproof_certificate_requests_total",
			Help: "Certificate requests by result",
		}, []string{"result"}),
		ProofRegistrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certproof_proof_registrations_total",
			Help: "Proof sources registered by type and verification",
		}, []string{"source", "verified"}),
	}
}

func (m *Metrics) IncrementStarted() {
	if m != nil {
		m.Started.Inc()
	}
}

// IncrementTeardown records one session leaving the arena.
func (m *Metrics) IncrementTeardown(reason string) {
	if m != nil {
		m.Teardowns.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) IncrementProof(source string, verified bool) {
	if m != nil {
		label := "false"
		if verified {
			label = "true"
		}
		m.ProofRegistrations.WithLabelValues(source, label).Inc()
	}
}

// ObserveCertificateRequest records a request and, on success, its coefficient.
func (m *Metrics) ObserveCertificateRequest(result string, coefficient float64) {
	if m != nil {
		m.CertificateRequests.WithLabelValues(result).Inc()
		if result == "issued" {
			m.Certainty.Observe(coefficient)
		}
	}
}
