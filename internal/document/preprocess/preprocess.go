// Package preprocess enhances photographed documents before recognition.
//
// Steps run in order, each on the output of the previous one. When a step
// errors or panics the chain stops and the original, unprocessed image is
// returned with no applied steps; the caller always gets a usable image back.
package preprocess

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"
)

// Step names recorded in Result.AppliedSteps.
const (
	StepGrayscale = "grayscale"
	StepContrast  = "contrast"
	StepDeskew    = "deskew"
	StepUpscale   = "upscale"
)

// Step transforms an image. It may return its input unchanged.
type Step struct {
	Name  string
	Apply func(image.Image) (image.Image, error)
}

// Result is the processed image and the steps applied to it. AppliedSteps is
// diagnostic only.
type Result struct {
	Image        image.Image
	AppliedSteps []string
}

// Observer receives per-step outcomes. Satisfied by the document metrics.
type Observer interface {
	ObservePreprocessStep(step string, ok bool, d time.Duration)
}

// Preprocessor runs a fixed chain of steps.
type Preprocessor struct {
	steps    []Step
	logger   *slog.Logger
	observer Observer
}

type Option func(*Preprocessor)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Preprocessor) { p.logger = logger }
}

func WithObserver(o Observer) Option {
	return func(p *Preprocessor) { p.observer = o }
}

// WithSteps replaces the default chain.
func WithSteps(steps ...Step) Option {
	return func(p *Preprocessor) { p.steps = steps }
}

// DefaultSteps is grayscale, contrast stretch, deskew, then upscale.
func DefaultSteps() []Step {
	return []Step{
		{Name: StepGrayscale, Apply: Grayscale},
		{Name: StepContrast, Apply: StretchContrast},
		{Name: StepDeskew, Apply: Deskew},
		{Name: StepUpscale, Apply: func(img image.Image) (image.Image, error) { return Upscale(img, MinWidth) }},
	}
}

func New(opts ...Option) *Preprocessor {
	p := &Preprocessor{steps: DefaultSteps()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Preprocess never fails. A nil image is returned as is with no steps applied.
func (p *Preprocessor) Preprocess(ctx context.Context, img image.Image) Result {
	res := Result{Image: img, AppliedSteps: []string{}}
	if img == nil {
		return res
	}
	current := img
	applied := []string{}
	for _, step := range p.steps {
		if ctx.Err() != nil {
			return res
		}
		start := time.Now()
		out, err := runStep(step, current)
		ok := err == nil && out != nil
		if p.observer != nil {
			p.observer.ObservePreprocessStep(step.Name, ok, time.Since(start))
		}
		if !ok {
			if p.logger != nil {
				p.logger.DebugContext(ctx, "preprocess step failed, using original image",
					"step", step.Name,
					"discarded_steps", applied,
					"error", err,
				)
			}
			return res
		}
		current = out
		applied = append(applied, step.Name)
	}
	res.Image = current
	res.AppliedSteps = applied
	return res
}

func runStep(step Step, img image.Image) (out image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("step %s panicked: %v", step.Name, r)
		}
	}()
	return step.Apply(img)
}
