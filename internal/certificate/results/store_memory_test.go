package results

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certproof/internal/phone/certification"
	id "certproof/pkg/domain"
	"certproof/pkg/platform/sentinel"
)

func sampleResult(at time.Time, score int) certification.Result {
	return certification.Result{
		PhoneNumber: id.PhoneNumber("+2250701020304"),
		ProofLevel:  certification.ClassifyProofLevel(score),
		TrustScore:  score,
		Proofs:      certification.Proofs{OTPVerified: true},
		CertifiedAt: at,
	}
}

func TestNewRecord_DoesNotKeepRawPhone(t *testing.T) {
	rec := NewRecord(id.NewSessionID(), sampleResult(time.Now(), 25), "hash")

	assert.Equal(t, "hash", rec.PhoneHash)
	assert.NotContains(t, rec.PhoneMasked, "0701020304")
	assert.Equal(t, certification.ProofLevelLow, rec.ProofLevel)
}

func TestInMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	sid := id.NewSessionID()
	t0 := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	_, err := repo.FindBySession(ctx, sid)
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	older := NewRecord(sid, sampleResult(t0, 25), "h1")
	newer := NewRecord(sid, sampleResult(t0.Add(time.Hour), 50), "h1")
	other := NewRecord(id.NewSessionID(), sampleResult(t0.Add(2*time.Hour), 85), "h2")
	for _, rec := range []Record{newer, older, other} {
		require.NoError(t, repo.Save(ctx, rec))
	}

	got, err := repo.FindBySession(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)

	list, err := repo.ListByPhoneHash(ctx, "h1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, older.ID, list[1].ID)

	none, err := repo.ListByPhoneHash(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}
