// Package pipeline runs one document through preprocessing, recognition and
// field extraction, strictly in that order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register decoders
	_ "image/png"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	_ "golang.org/x/image/webp"

	"certproof/internal/document/extraction"
	"certproof/internal/document/ocr"
	"certproof/internal/document/preprocess"
	"certproof/internal/platform/tracing"
	id "certproof/pkg/domain"
	dErrors "certproof/pkg/domain-errors"
	"certproof/pkg/platform/outcome"
)

// Observer receives pipeline outcomes. Satisfied by the document metrics.
type Observer interface {
	ObservePipeline(status string, d time.Duration)
	IncrementManualReview()
	IncrementStaleDiscarded()
}

// Output is everything a successful run produced.
type Output struct {
	OCR          ocr.RawResult
	AppliedSteps []string
	Extraction   outcome.Result[extraction.Fields]
	Review       extraction.Review
}

// Pipeline composes the three document stages.
type Pipeline struct {
	preprocessor *preprocess.Preprocessor
	recognizer   *ocr.Stage
	engine       *extraction.Engine
	logger       *slog.Logger
	observer     Observer
	tracer       trace.Tracer
}

type Option func(*Pipeline)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

func New(preprocessor *preprocess.Preprocessor, recognizer *ocr.Stage, engine *extraction.Engine, opts ...Option) *Pipeline {
	p := &Pipeline{
		preprocessor: preprocessor,
		recognizer:   recognizer,
		engine:       engine,
		tracer:       tracing.Tracer("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run blocks until extraction completes. advisory fires if recognition is slow.
//
// The only error is a recognition failure (wrapping ocr.ErrRecognitionFailed)
// or ctx cancellation; every other stage degrades instead of failing.
func (p *Pipeline) Run(ctx context.Context, img image.Image, docType id.DocumentType, advisory ocr.Advisory) (Output, error) {
	ctx, span := tracing.Start(ctx, p.tracer, "pipeline.run", "document_type", docType.String())
	start := time.Now()

	out, err := p.run(ctx, img, docType, advisory)

	status := StatusReady
	if err != nil {
		status = StatusFailed
	}
	if p.observer != nil {
		p.observer.ObservePipeline(string(status), time.Since(start))
		if err == nil && out.Review.RequiresManualReview {
			p.observer.IncrementManualReview()
		}
	}
	tracing.End(span, err)
	return out, err
}

func (p *Pipeline) run(ctx context.Context, img image.Image, docType id.DocumentType, advisory ocr.Advisory) (Output, error) {
	pre := p.preprocessor.Preprocess(ctx, img)
	if p.logger != nil {
		p.logger.DebugContext(ctx, "preprocessing done", "applied_steps", pre.AppliedSteps)
	}

	raw, err := p.recognizer.Recognize(ctx, pre.Image, advisory)
	if err != nil {
		return Output{AppliedSteps: pre.AppliedSteps}, err
	}

	res := p.engine.Extract(ctx, raw.Text, docType, raw.Confidence)
	return Output{
		OCR:          raw,
		AppliedSteps: pre.AppliedSteps,
		Extraction:   res,
		Review:       extraction.ReviewFor(res.Value),
	}, nil
}

// Decode reads a JPEG, PNG or WebP image of at most maxBytes.
//
// Errors: CodeInvalidInput for oversized, empty or undecodable content.
func Decode(r io.Reader, maxBytes int64) (image.Image, error) {
	lr := &io.LimitedReader{R: r, N: maxBytes + 1}
	img, format, err := image.Decode(lr)
	if lr.N <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("image exceeds %d bytes", maxBytes))
	}
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "unsupported image format")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "corrupt image")
	}
	if img.Bounds().Empty() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "empty "+format+" image")
	}
	return img, nil
}
