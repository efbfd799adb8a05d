package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the document pipeline.
type Metrics struct {
	// Preprocessing step outcomes and latency by step
	PreprocessStep *prometheus.HistogramVec

	// OCR latency by outcome; slow counts advisory firings
	OCRLatency *prometheus.HistogramVec
	OCRSlow    prometheus.Counter

	// Extraction outcomes by status (ok, degraded) and reason
	ExtractionOutcome *prometheus.CounterVec
	AnalysisLatency   prometheus.Histogram
	BreakerState      prometheus.Gauge

	ManualReview    prometheus.Counter
	StaleDiscarded  prometheus.Counter
	PipelineLatency *prometheus.HistogramVec
}

// New registers the document metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PreprocessStep: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certproof_document_preprocess_step_duration_seconds",
			Help:    "Duration of preprocessing steps by step and result",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"step", "result"}),

		OCRLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certproof_document_ocr_duration_seconds",
			Help:    "Duration of OCR recognition by result",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}, []string{"result"}),
		OCRSlow: f.NewCounter(prometheus.CounterOpts{
			Name: "certproof_document_ocr_slow_total",
			Help: "OCR recognitions that exceeded the slow-analysis threshold",
		}),

		ExtractionOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certproof_document_extraction_total",
			Help: "Field extraction outcomes by status and degraded reason",
		}, []string{"status", "reason"}),
		AnalysisLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "certproof_document_analysis_duration_seconds",
			Help:    "Duration of remote document-analysis calls",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}),
		BreakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "certproof_document_analysis_breaker_open",
			Help: "1 when the document-analysis circuit breaker is open",
		}),

		ManualReview: f.NewCounter(prometheus.CounterOpts{
			Name: "certproof_document_manual_review_total",
			Help: "Extractions below the confidence threshold that required manual review",
		}),
		StaleDiscarded: f.NewCounter(prometheus.CounterOpts{
			Name: "certproof_document_stale_results_total",
			Help: "Pipeline results discarded because the document was replaced or cancelled",
		}),
		PipelineLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certproof_document_pipeline_duration_seconds",
			Help:    "End-to-end document pipeline duration by final status",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}, []string{"status"}),
	}
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}

// ObservePreprocessStep records one preprocessing step.
func (m *Metrics) ObservePreprocessStep(step string, ok bool, d time.Duration) {
	if m != nil {
		m.PreprocessStep.WithLabelValues(step, result(ok)).Observe(d.Seconds())
	}
}

// ObserveOCR records one recognition.
func (m *Metrics) ObserveOCR(ok, slow bool, d time.Duration) {
	if m != nil {
		m.OCRLatency.WithLabelValues(result(ok)).Observe(d.Seconds())
		if slow {
			m.OCRSlow.Inc()
		}
	}
}

// IncrementExtraction records an extraction outcome.
func (m *Metrics) IncrementExtraction(status, reason string) {
	if m != nil {
		m.ExtractionOutcome.WithLabelValues(status, reason).Inc()
	}
}

func (m *Metrics) ObserveAnalysisLatency(d time.Duration) {
	if m != nil {
		m.AnalysisLatency.Observe(d.Seconds())
	}
}

// SetBreakerOpen mirrors the analysis breaker position.
func (m *Metrics) SetBreakerOpen(open bool) {
	if m != nil {
		v := 0.0
		if open {
			v = 1
		}
		m.BreakerState.Set(v)
	}
}

func (m *Metrics) IncrementManualReview() {
	if m != nil {
		m.ManualReview.Inc()
	}
}

func (m *Metrics) IncrementStaleDiscarded() {
	if m != nil {
		m.StaleDiscarded.Inc()
	}
}

// ObservePipeline records the full pipeline duration.
func (m *Metrics) ObservePipeline(status string, d time.Duration) {
	if m != nil {
		m.PipelineLatency.WithLabelValues(status).Observe(d.Seconds())
	}
}
