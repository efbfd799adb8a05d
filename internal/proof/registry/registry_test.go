package registry

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "certproof/pkg/domain-errors"
)

func TestEmptyRegistryIsZero(t *testing.T) {
	snap := New().Snapshot()
	assert.Empty(t, snap.Sources)
	assert.Equal(t, 0.0, snap.CertaintyCoefficient)
	assert.Equal(t, 0.0, snap.EvidenceReliability)
}

func TestAllVerifiedIsOne(t *testing.T) {
	r := New()
	for _, st := range order {
		require.NoError(t, r.Register(Source{Type: st, Verified: true}))
	}
	snap := r.Snapshot()
	assert.InDelta(t, 1.0, snap.CertaintyCoefficient, 1e-9)
	assert.InDelta(t, VerifiedReliability, snap.EvidenceReliability, 1e-9)
}

func TestNormalizedSum_IgnoresUnverified(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Source{Type: SourceDocumentOCR, Verified: false}))
	require.NoError(t, r.Register(Source{Type: SourceGuarantor, Verified: false}))
	snap := r.Snapshot()
	assert.Equal(t, 0.0, snap.CertaintyCoefficient)
	assert.InDelta(t, DeclarativeReliability, snap.EvidenceReliability, 1e-9)

	require.NoError(t, r.Register(Source{Type: SourceOTP, Verified: true}))
	assert.InDelta(t, 0.9/4.15, r.Snapshot().CertaintyCoefficient, 1e-9)
}

// Every order of turning sources verified must give a non-decreasing
// coefficient that stays within [0, 1].
func TestCoefficientIsMonotonicInAnyOrder(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for trial := 0; trial < 200; trial++ {
		r := New()
		for _, st := range order {
			if rng.IntN(2) == 0 {
				require.NoError(t, r.Register(Source{Type: st, Verified: false}))
			}
		}
		perm := rng.Perm(len(order))
		prev := r.Snapshot().CertaintyCoefficient
		for _, i := range perm {
			require.NoError(t, r.Register(Source{Type: order[i], Verified: true}))
			got := r.Snapshot().CertaintyCoefficient
			assert.GreaterOrEqual(t, got, prev-1e-12)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
			prev = got
		}
	}
}

// Unverified sources alone never produce a coefficient, whichever types are
// registered.
func TestUnverifiedSourcesNeverCount(t *testing.T) {
	for _, st := range order {
		t.Run(string(st), func(t *testing.T) {
			r := New()
			require.NoError(t, r.Register(Source{Type: st, Verified: false}))
			assert.Equal(t, 0.0, r.Snapshot().CertaintyCoefficient)
		})
	}
}

func TestRemoveDropsSource(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Source{Type: SourceOTP, Verified: true}))
	require.NoError(t, r.Register(Source{Type: SourceDocumentOCR, Verified: true}))

	assert.True(t, r.Remove(SourceOTP))
	assert.False(t, r.Remove(SourceOTP))

	snap := r.Snapshot()
	assert.Equal(t, []SourceType{SourceDocumentOCR}, snap.Verified())
	assert.InDelta(t, 0.8/4.15, snap.CertaintyCoefficient, 1e-9)
}

func TestCoefficientIsCommutative(t *testing.T) {
	a, b := New(), New()
	srcs := []Source{
		{Type: SourceOTP, Verified: true},
		{Type: SourceDocumentOCR, Verified: true},
		{Type: SourceUSSDCapture, Verified: false},
	}
	for i := range srcs {
		require.NoError(t, a.Register(srcs[i]))
		require.NoError(t, b.Register(srcs[len(srcs)-1-i]))
	}
	assert.Equal(t, a.Snapshot().CertaintyCoefficient, b.Snapshot().CertaintyCoefficient)
}

func TestRegisterReplacesSameType(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := New(WithClock(func() time.Time { return now }))
	score := 64.0
	require.NoError(t, r.Register(Source{Type: SourceDocumentOCR, Verified: false, DetailScore: &score}))
	score = 99
	require.NoError(t, r.Register(Source{Type: SourceDocumentOCR, Verified: true}))

	snap := r.Snapshot()
	require.Len(t, snap.Sources, 1)
	assert.True(t, snap.Sources[0].Verified)
	assert.Nil(t, snap.Sources[0].DetailScore)
	assert.Equal(t, 0.8, snap.Sources[0].Weight)
	assert.Equal(t, now, snap.Sources[0].RegisteredAt)
	assert.Equal(t, 1, r.Len())
}

func TestRegisterRejectsUnknownType(t *testing.T) {
	err := New().Register(Source{Type: "selfie"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestSnapshotIsCanonicallyOrderedCopy(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Source{Type: SourceGuarantor, Verified: true}))
	require.NoError(t, r.Register(Source{Type: SourceOTP, Verified: true}))
	require.NoError(t, r.Register(Source{Type: SourceDocumentOCR}))

	snap := r.Snapshot()
	assert.Equal(t, []SourceType{SourceOTP, SourceGuarantor}, snap.Verified())
	assert.Equal(t, SourceDocumentOCR, snap.Sources[0].Type)

	snap.Sources[0].Verified = true
	assert.False(t, r.Snapshot().Sources[0].Verified)

	r.Reset()
	assert.Zero(t, r.Len())
}

func TestEvidenceReliability(t *testing.T) {
	assert.Equal(t, 0.0, EvidenceReliability(0, 0))
	assert.InDelta(t, 0.9, EvidenceReliability(3, 0), 1e-9)
	assert.InDelta(t, 0.3, EvidenceReliability(0, 2), 1e-9)
	assert.InDelta(t, 0.6, EvidenceReliability(1, 1), 1e-9)
	assert.InDelta(t, 0.3, EvidenceReliability(-1, 4), 1e-9)
}

func TestTotalWeight(t *testing.T) {
	assert.InDelta(t, 4.15, TotalWeight(), 1e-9)
	assert.Zero(t, Weight("unknown"))
}

func TestParseSourceType(t *testing.T) {
	st, err := ParseSourceType("guarantor")
	require.NoError(t, err)
	assert.Equal(t, SourceGuarantor, st)

	_, err = ParseSourceType("")
	assert.Error(t, err)
}
