package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certproof/internal/proof/registry"
	"certproof/pkg/platform/sentinel"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)
	s := NewInMemoryStore().WithClock(func() time.Time { return now })
	p := Published{SessionID: "s1", Snapshot: registry.Snapshot{CertaintyCoefficient: 0.2}, PublishedAt: now}

	_, err := s.Get(ctx, "s1")
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	require.NoError(t, s.Put(ctx, p, time.Minute))
	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, p, got)

	now = now.Add(time.Minute)
	_, err = s.Get(ctx, "s1")
	assert.ErrorIs(t, err, sentinel.ErrNotFound, "expired entries are gone")

	require.NoError(t, s.Put(ctx, p, time.Minute))
	require.NoError(t, s.Delete(ctx, "s1"))
	_, err = s.Get(ctx, "s1")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
