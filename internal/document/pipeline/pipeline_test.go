package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"certproof/internal/document/extraction"
	"certproof/internal/document/ocr"
	"certproof/internal/document/preprocess"
	id "certproof/pkg/domain"
	dErrors "certproof/pkg/domain-errors"
	"certproof/pkg/platform/outcome"
	"certproof/pkg/platform/sentinel"
)

const sampleText = "KOUASSI AMENAN\nNee le 15/01/1990\nExpire le 14/06/2030\nAB1234567"

type fakeEngine struct {
	mu      sync.Mutex
	results []ocr.RawResult
	errs    []error
	gate    chan struct{}
	calls   int
}

func (f *fakeEngine) Recognize(ctx context.Context, _ image.Image) (ocr.RawResult, error) {
	f.mu.Lock()
	n := f.calls
	f.calls++
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ocr.RawResult{}, ctx.Err()
		}
	}
	if n < len(f.errs) && f.errs[n] != nil {
		return ocr.RawResult{}, f.errs[n]
	}
	if len(f.results) == 0 {
		return ocr.RawResult{Text: sampleText, Confidence: 82}, nil
	}
	return f.results[min(n, len(f.results)-1)], nil
}

type countingObserver struct {
	pipelines atomic.Int32
	reviews   atomic.Int32
	stale     atomic.Int32
}

func (o *countingObserver) ObservePipeline(string, time.Duration) { o.pipelines.Add(1) }
func (o *countingObserver) IncrementManualReview() { o.reviews.Add(1) }
func (o *countingObserver) IncrementStaleDiscarded() { o.stale.Add(1) }

func testImage() image.Image {
	img := image.NewGray(image.Rect(0, 0, 40, 20))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return img
}

func newPipeline(engine ocr.Engine, o Observer, opts ...ocr.Option) *Pipeline {
	pre := preprocess.New(preprocess.WithSteps(preprocess.Step{Name: preprocess.StepGrayscale, Apply: preprocess.Grayscale}))
	return New(pre, ocr.NewStage(engine, opts...), extraction.NewEngine(), WithObserver(o))
}

func TestRun_ExtractsWithLocalFallback(t *testing.T) {
	obs := &countingObserver{}
	p := newPipeline(&fakeEngine{}, obs)

	out, err := p.Run(context.Background(), testImage(), id.DocumentTypeNationalID, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{preprocess.StepGrayscale}, out.AppliedSteps)
	assert.Equal(t, outcome.StatusDegraded, out.Extraction.Status)
	assert.Equal(t, extraction.ReasonAnalysisDisabled, out.Extraction.Reason)
	require.NotNil(t, out.Extraction.Value.FullName)
	assert.Equal(t, "KOUASSI AMENAN", *out.Extraction.Value.FullName)
	require.NotNil(t, out.Extraction.Value.DocumentNumber)
	assert.Equal(t, "AB1234567", *out.Extraction.Value.DocumentNumber)
	assert.InDelta(t, 82, out.Extraction.Value.Confidence, 0.001)
	assert.False(t, out.Review.RequiresManualReview)
	assert.Equal(t, int32(1), obs.pipelines.Load())
	assert.Equal(t, int32(0), obs.reviews.Load())
}

func TestRun_LowConfidenceCountsManualReview(t *testing.T) {
	obs := &countingObserver{}
	p := newPipeline(&fakeEngine{results: []ocr.RawResult{{Text: sampleText, Confidence: 40}}}, obs)

	out, err := p.Run(context.Background(), testImage(), id.DocumentTypeNationalID, nil)

	require.NoError(t, err)
	assert.True(t, out.Review.RequiresManualReview)
	assert.Equal(t, int32(1), obs.reviews.Load())
}

func TestRun_RecognitionFailureIsTheOnlyError(t *testing.T) {
	p := newPipeline(&fakeEngine{errs: []error{errors.New("corrupt")}}, nil)

	_, err := p.Run(context.Background(), testImage(), id.DocumentTypePassport, nil)

	assert.ErrorIs(t, err, ocr.ErrRecognitionFailed)
}

func TestRun_SlowAdvisoryDoesNotCancel(t *testing.T) {
	gate := make(chan struct{})
	p := newPipeline(&fakeEngine{gate: gate}, nil, ocr.WithSlowThreshold(5*time.Millisecond))

	fired := make(chan struct{})
	go func() {
		<-fired
		close(gate)
	}()

	out, err := p.Run(context.Background(), testImage(), id.DocumentTypeNationalID, func() { close(fired) })

	require.NoError(t, err)
	assert.NotEmpty(t, out.OCR.Text)
}

func TestDecode(t *testing.T) {
	var buf bytes.Buffer
	src := image.NewRGBA(image.Rect(0, 0, 8, 4))
	src.Set(1, 1, color.Black)
	require.NoError(t, png.Encode(&buf, src))

	t.Run("png", func(t *testing.T) {
		img, err := Decode(bytes.NewReader(buf.Bytes()), 1<<20)
		require.NoError(t, err)
		assert.Equal(t, 8, img.Bounds().Dx())
	})
	t.Run("unknown format", func(t *testing.T) {
		_, err := Decode(strings.NewReader("not an image"), 1<<20)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
	t.Run("too large", func(t *testing.T) {
		_, err := Decode(bytes.NewReader(buf.Bytes()), 16)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

type SlotSuite struct {
	suite.Suite
	engine   *fakeEngine
	observer *countingObserver
	slot     *Slot
}

func TestSlotSuite(t *testing.T) {
	suite.Run(t, new(SlotSuite))
}

func (s *SlotSuite) SetupTest() {
	s.engine = &fakeEngine{}
	s.observer = &countingObserver{}
	s.slot = NewSlot(context.Background(), newPipeline(s.engine, s.observer), WithSlotObserver(s.observer))
}

func (s *SlotSuite) TearDownTest() {
	s.slot.Close()
}

func (s *SlotSuite) TestSubmitBecomesReady() {
	doc := s.slot.Submit(testImage(), id.DocumentTypeNationalID)
	s.Equal(StatusProcessing, doc.Status)

	s.slot.Wait()
	got, err := s.slot.Status(doc.Token)
	s.Require().NoError(err)
	s.Equal(StatusReady, got.Status)
	s.Equal(outcome.StatusDegraded, got.Extraction)
	s.InDelta(82, got.OCRConfidence, 0.001)
	s.False(got.CompletedAt.IsZero())
}

func (s *SlotSuite) TestReplacedDocumentResultIsDiscarded() {
	s.engine.gate = make(chan struct{})
	first := s.slot.Submit(testImage(), id.DocumentTypeNationalID)
	second := s.slot.Submit(testImage(), id.DocumentTypePassport)
	close(s.engine.gate)
	s.slot.Wait()

	_, err := s.slot.Status(first.Token)
	s.ErrorIs(err, sentinel.ErrNotFound)

	got, err := s.slot.Status(second.Token)
	s.Require().NoError(err)
	s.Equal(StatusReady, got.Status)
	s.Equal(int32(1), s.observer.stale.Load())
}

func (s *SlotSuite) TestCancelDiscardsLateResult() {
	s.engine.gate = make(chan struct{})
	doc := s.slot.Submit(testImage(), id.DocumentTypeNationalID)

	s.Require().NoError(s.slot.Cancel(doc.Token))
	close(s.engine.gate)
	s.slot.Wait()

	_, err := s.slot.Status(doc.Token)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.Equal(int32(1), s.observer.stale.Load())
	s.ErrorIs(s.slot.Cancel(doc.Token), sentinel.ErrNotFound)
}

func (s *SlotSuite) TestRetryAfterRecognitionFailure() {
	s.engine.errs = []error{errors.New("unreadable")}
	doc := s.slot.Submit(testImage(), id.DocumentTypeNationalID)
	s.slot.Wait()

	failed, err := s.slot.Status(doc.Token)
	s.Require().NoError(err)
	s.Equal(StatusFailed, failed.Status)
	s.NotEmpty(failed.Failure)

	retried, err := s.slot.Retry(doc.Token)
	s.Require().NoError(err)
	s.Equal(2, retried.Attempt)
	s.slot.Wait()

	got, err := s.slot.Status(doc.Token)
	s.Require().NoError(err)
	s.Equal(StatusReady, got.Status)
	s.Empty(got.Failure)

	_, err = s.slot.Retry(doc.Token)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func (s *SlotSuite) TestConfirmRequiresAcknowledgedReview() {
	s.engine.results = []ocr.RawResult{{Text: sampleText, Confidence: 55}}
	doc := s.slot.Submit(testImage(), id.DocumentTypeNationalID)
	s.slot.Wait()

	_, err := s.slot.Confirm(doc.Token, nil, false)
	s.True(dErrors.HasCode(err, dErrors.CodeReviewRequired))

	confirmed, err := s.slot.Confirm(doc.Token, map[string]string{extraction.FieldNationality: "CIV"}, true)
	s.Require().NoError(err)
	s.Equal([]string{extraction.FieldNationality}, confirmed.UserCorrected)

	got, err := s.slot.Status(doc.Token)
	s.Require().NoError(err)
	s.Equal(StatusConfirmed, got.Status)
	s.NotNil(got.Confirmed)

	_, err = s.slot.Confirm(doc.Token, nil, true)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func (s *SlotSuite) TestConfirmWhileProcessingIsInvalidState() {
	s.engine.gate = make(chan struct{})
	doc := s.slot.Submit(testImage(), id.DocumentTypeNationalID)

	_, err := s.slot.Confirm(doc.Token, nil, true)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	close(s.engine.gate)
}

func TestSlotListener(t *testing.T) {
	engine := &fakeEngine{gate: make(chan struct{})}
	var mu sync.Mutex
	var seen []bool
	slot := NewSlot(context.Background(), newPipeline(engine, nil), WithSlotListener(func(doc Document, stale bool) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, stale)
		if !stale {
			assert.Equal(t, StatusReady, doc.Status)
		}
	}))
	defer slot.Close()

	first := slot.Submit(testImage(), id.DocumentTypeNationalID)
	require.NoError(t, slot.Cancel(first.Token))
	slot.Submit(testImage(), id.DocumentTypeNationalID)
	close(engine.gate)
	slot.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []bool{true, false}, seen)
}
