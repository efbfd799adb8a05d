// Package ocr runs text recognition on a preprocessed document image.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"certproof/internal/platform/tracing"
)

// DefaultSlowThreshold is when the slow-analysis advisory fires.
const DefaultSlowThreshold = 30 * time.Second

// ErrRecognitionFailed marks a hard OCR failure. It is the one document error
// surfaced to the user, with a retry affordance.
var ErrRecognitionFailed = errors.New("ocr recognition failed")

// RawResult is the recognized text and a 0..100 confidence. Immutable once returned.
type RawResult struct {
	Text       string
	Confidence float64
}

// Engine is any text recognizer.
type Engine interface {
	Recognize(ctx context.Context, img image.Image) (RawResult, error)
}

// Advisory is called at most once when recognition exceeds the slow threshold.
// Recognition keeps running after it fires.
type Advisory func()

// Observer receives recognition timings. Satisfied by the document metrics.
type Observer interface {
	ObserveOCR(ok, slow bool, d time.Duration)
}

// Stage wraps an Engine with the slow advisory, error normalization and bounds on confidence.
type Stage struct {
	engine        Engine
	slowThreshold time.Duration
	logger        *slog.Logger
	observer      Observer
	tracer        trace.Tracer
}

type Option func(*Stage)

func WithSlowThreshold(d time.Duration) Option {
	return func(s *Stage) {
		if d > 0 {
			s.slowThreshold = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Stage) { s.logger = logger }
}

func WithObserver(o Observer) Option {
	return func(s *Stage) { s.observer = o }
}

func NewStage(engine Engine, opts ...Option) *Stage {
	s := &Stage{
		engine:        engine,
		slowThreshold: DefaultSlowThreshold,
		tracer:        tracing.Tracer("ocr"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Recognize blocks until the engine returns or ctx is cancelled. advisory may be nil.
//
// Errors wrap ErrRecognitionFailed, or are ctx.Err() on cancellation.
func (s *Stage) Recognize(ctx context.Context, img image.Image, advisory Advisory) (RawResult, error) {
	ctx, span := tracing.Start(ctx, s.tracer, "ocr.recognize")
	start := time.Now()

	timer := time.AfterFunc(s.slowThreshold, func() {
		if s.logger != nil {
			s.logger.InfoContext(ctx, "ocr exceeded slow threshold", "threshold_ms", s.slowThreshold.Milliseconds())
		}
		if advisory != nil {
			advisory()
		}
	})

	res, err := s.recognize(ctx, img)
	// A timer that could not be stopped has run or will run the advisory.
	fired := !timer.Stop()
	if s.observer != nil {
		s.observer.ObserveOCR(err == nil, fired, time.Since(start))
	}
	tracing.End(span, err)
	return res, err
}

func (s *Stage) recognize(ctx context.Context, img image.Image) (RawResult, error) {
	if img == nil || img.Bounds().Empty() {
		return RawResult{}, fmt.Errorf("%w: empty image", ErrRecognitionFailed)
	}
	res, err := s.engine.Recognize(ctx, img)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return RawResult{}, ctxErr
		}
		return RawResult{}, fmt.Errorf("%w: %v", ErrRecognitionFailed, err)
	}
	res.Text = strings.TrimSpace(res.Text)
	res.Confidence = ClampConfidence(res.Confidence)
	return res, nil
}

// ClampConfidence bounds c to [0, 100]. NaN becomes 0.
func ClampConfidence(c float64) float64 {
	switch {
	case math.IsNaN(c), c < 0:
		return 0
	case c > 100:
		return 100
	default:
		return c
	}
}
