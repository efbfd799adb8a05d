package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_NilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	m.ObservePreprocessStep("deskew", true, time.Millisecond)
	m.ObserveOCR(true, true, time.Second)
	m.IncrementExtraction("degraded", "circuit_open")
	m.SetBreakerOpen(true)
	m.IncrementManualReview()
	m.IncrementStaleDiscarded()
	m.ObservePipeline("ready", time.Second)
}

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveOCR(true, true, 31*time.Second)
	m.ObserveOCR(true, false, time.Second)
	m.IncrementExtraction("degraded", "circuit_open")
	m.SetBreakerOpen(true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OCRSlow))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExtractionOutcome.WithLabelValues("degraded", "circuit_open")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerState))
}
