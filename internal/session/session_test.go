package session

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certproof/internal/document/extraction"
	"certproof/internal/document/ocr"
	"certproof/internal/document/pipeline"
	"certproof/internal/document/preprocess"
	"certproof/internal/phone/certification"
	"certproof/internal/proof/registry"
	id "certproof/pkg/domain"
	"certproof/pkg/platform/sentinel"
)

type staticEngine struct{}

func (staticEngine) Recognize(context.Context, image.Image) (ocr.RawResult, error) {
	return ocr.RawResult{Text: "KOUASSI AMENAN", Confidence: 90}, nil
}

func newTestArena() *Arena {
	p := pipeline.New(preprocess.New(preprocess.WithSteps()), ocr.NewStage(staticEngine{}), extraction.NewEngine())
	return NewArena(func(id.SessionID) *pipeline.Slot {
		return pipeline.NewSlot(context.Background(), p)
	})
}

func TestArena_Lifecycle(t *testing.T) {
	a := newTestArena()
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	s := a.Create(t0)
	assert.Equal(t, 1, a.Len())

	got, err := a.Get(s.ID, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Empty(t, a.Idle(t0.Add(time.Minute)))
	assert.Equal(t, []id.SessionID{s.ID}, a.Idle(t0.Add(2*time.Minute)))

	_, err = a.Teardown(s.ID)
	require.NoError(t, err)
	assert.True(t, s.Closed())
	assert.Zero(t, a.Len())

	_, err = a.Get(s.ID, t0)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	_, err = a.Teardown(s.ID)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestSession_RegisterAfterCloseIsStale(t *testing.T) {
	a := newTestArena()
	s := a.Create(time.Now())

	snap, err := s.register(registry.Source{Type: registry.SourceOTP, Verified: true}, nil)
	require.NoError(t, err)
	assert.Positive(t, snap.CertaintyCoefficient)

	_, err = a.Teardown(s.ID)
	require.NoError(t, err)

	_, err = s.register(registry.Source{Type: registry.SourceGuarantor, Verified: true}, nil)
	assert.ErrorIs(t, err, sentinel.ErrStale)
	assert.Zero(t, s.registry.Len())
}

func TestSession_ReplacedPhoneFlowLosesItsProofs(t *testing.T) {
	a := newTestArena()
	s := a.Create(time.Now())
	first := certification.NewMachine(id.PhoneNumber("+2250701020304"))

	s.mu.Lock()
	assert.Empty(t, s.replacePhone(first))
	s.mu.Unlock()

	_, err := s.register(registry.Source{Type: registry.SourceOTP, Verified: true}, first)
	require.NoError(t, err)
	_, err = s.register(registry.Source{Type: registry.SourceDocumentOCR, Verified: true}, nil)
	require.NoError(t, err)

	second := certification.NewMachine(id.PhoneNumber("+2250509080706"))
	s.mu.Lock()
	withdrawn := s.replacePhone(second)
	s.mu.Unlock()
	assert.Equal(t, []registry.SourceType{registry.SourceOTP}, withdrawn)
	assert.Equal(t, []registry.SourceType{registry.SourceDocumentOCR}, s.registry.Snapshot().Verified())

	_, err = s.register(registry.Source{Type: registry.SourceUSSDCapture, Verified: true}, first)
	assert.ErrorIs(t, err, sentinel.ErrStale)
	assert.Equal(t, 1, s.registry.Len())
}

func TestSweeper_ParsesDescriptorsAndCron(t *testing.T) {
	svc := &Service{}
	t0 := time.Date(2026, 3, 1, 10, 0, 30, 0, time.UTC)

	every, err := NewSweeper(svc, "@every 1m", nil)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Minute), every.Next(t0))

	hourly, err := NewSweeper(svc, "0 * * * *", nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC), hourly.Next(t0))

	_, err = NewSweeper(svc, "not a schedule", nil)
	assert.Error(t, err)
}
