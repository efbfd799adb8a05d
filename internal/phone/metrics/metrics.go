package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for phone certification.
type Metrics struct {
	OTPOutcome     *prometheus.CounterVec
	CaptureOutcome *prometheus.CounterVec
	Completions    *prometheus.CounterVec
	TrustScoreDist prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OTPOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certproof_phone_otp_total",
			Help: "OTP operations by result (sent, verified, rejected, expired, send_failed, verify_failed)",
		}, []string{"result"}),
		CaptureOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certproof_phone_capture_total",
			Help: "Screenshot analyses by status and degraded reason",
		}, []string{"status", "reason"}),
		Completions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certproof_phone_certifications_total",
			Help: "Completed phone certifications by proof level",
		}, []string{"proof_level"}),
		TrustScoreDist: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "certproof_phone_trust_score",
			Help:    "Trust score of completed phone certifications",
			Buckets: []float64{0, 20, 25, 50, 60, 75, 80, 85, 100},
		}),
	}
}

// IncrementOTP records one OTP operation.
func (m *Metrics) IncrementOTP(result string) {
	if m != nil {
		m.OTPOutcome.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncrementCapture(status, reason string) {
	if m != nil {
		m.CaptureOutcome.WithLabelValues(status, reason).Inc()
	}
}

// ObserveCompletion records a frozen certification.
func (m *Metrics) ObserveCompletion(level string, score int) {
	if m != nil {
		m.Completions.WithLabelValues(level).Inc()
		m.TrustScoreDist.Observe(float64(score))
	}
}
