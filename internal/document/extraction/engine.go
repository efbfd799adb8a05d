// Package extraction turns OCR text into identity fields.
//
// The remote document-analysis service is the primary path. Any failure of
// that path, including an open circuit breaker, falls back to deterministic
// local rules, so Extract always returns usable fields. The outcome status
// tells callers which path produced them.
package extraction

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"certproof/internal/platform/tracing"
	id "certproof/pkg/domain"
	"certproof/pkg/platform/circuit"
	"certproof/pkg/platform/collaborator"
	"certproof/pkg/platform/outcome"
)

// Degraded reasons.
const (
	ReasonAnalysisDisabled = "analysis_disabled"
	ReasonCircuitOpen      = "circuit_open"
)

// Analyzer is the document-analysis service. Calls must be idempotent.
type Analyzer interface {
	Analyze(ctx context.Context, req AnalysisRequest) (AnalysisResponse, error)
}

// Observer receives extraction outcomes. Satisfied by the document metrics.
type Observer interface {
	IncrementExtraction(status, reason string)
	ObserveAnalysisLatency(d time.Duration)
	SetBreakerOpen(open bool)
}

// Engine extracts fields with a remote primary path and a local fallback.
type Engine struct {
	analyzer Analyzer
	breaker  *circuit.Breaker
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
	tracer   trace.Tracer
}

type Option func(*Engine)

// WithAnalyzer sets the primary path. Without one every extraction is local.
func WithAnalyzer(a Analyzer) Option {
	return func(e *Engine) { e.analyzer = a }
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(e *Engine) { e.breaker = b }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		breaker: circuit.New("document-analysis"),
		now:     time.Now,
		tracer:  tracing.Tracer("extraction"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract never returns a failed outcome.
func (e *Engine) Extract(ctx context.Context, ocrText string, docType id.DocumentType, ocrConfidence float64) outcome.Result[Fields] {
	ctx, span := tracing.Start(ctx, e.tracer, "extraction.extract", "document_type", docType.String())
	defer span.End()

	res := e.extract(ctx, ocrText, docType, ocrConfidence)
	span.SetAttributes(tracingStatus(res)...)
	if e.observer != nil {
		e.observer.IncrementExtraction(string(res.Status), res.Reason)
	}
	return res
}

func (e *Engine) extract(ctx context.Context, ocrText string, docType id.DocumentType, ocrConfidence float64) outcome.Result[Fields] {
	if e.analyzer == nil {
		return outcome.Degraded(Fallback(ocrText, ocrConfidence, e.now()), ReasonAnalysisDisabled)
	}
	if !e.breaker.Allow() {
		return outcome.Degraded(Fallback(ocrText, ocrConfidence, e.now()), ReasonCircuitOpen)
	}

	start := time.Now()
	resp, err := e.analyzer.Analyze(ctx, AnalysisRequest{
		OCRText:       ocrText,
		DocumentType:  docType.String(),
		OCRConfidence: ocrConfidence,
	})
	if e.observer != nil {
		e.observer.ObserveAnalysisLatency(time.Since(start))
	}

	if err != nil {
		_, change := e.breaker.RecordFailure()
		e.onBreakerChange(ctx, change)
		reason := "analysis_" + string(collaborator.GetCategory(err))
		if e.logger != nil {
			e.logger.WarnContext(ctx, "document analysis failed, using local fallback",
				"reason", reason,
				"retryable", collaborator.IsRetryable(err),
				"error", err,
			)
		}
		return outcome.Degraded(Fallback(ocrText, ocrConfidence, e.now()), reason)
	}

	_, change := e.breaker.RecordSuccess()
	e.onBreakerChange(ctx, change)
	return outcome.Ok(Merge(resp, ocrConfidence))
}

func (e *Engine) onBreakerChange(ctx context.Context, change circuit.StateChange) {
	if !change.Opened && !change.Closed {
		return
	}
	if e.observer != nil {
		e.observer.SetBreakerOpen(change.Opened)
	}
	if e.logger != nil {
		e.logger.InfoContext(ctx, "document analysis breaker changed state",
			"breaker", e.breaker.Name(),
			"open", change.Opened,
		)
	}
}

func tracingStatus(r outcome.Result[Fields]) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("outcome", string(r.Status)),
		attribute.String("reason", r.Reason),
		attribute.Float64("confidence", r.Value.Confidence),
	}
}
