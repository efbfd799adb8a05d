//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certproof/internal/proof/registry"
	"certproof/internal/session/store"
	"certproof/pkg/platform/sentinel"
	"certproof/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *store.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = store.NewRedisStore(s.redis.Client.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestPutGetDelete() {
	ctx := context.Background()
	s.Require().NoError(s.redis.Client.Health(ctx))
	p := store.Published{
		SessionID: "session-1",
		Snapshot: registry.Snapshot{
			Sources:              []registry.Source{{Type: registry.SourceOTP, Weight: 0.9, Verified: true}},
			CertaintyCoefficient: 0.9 / 4.15,
		},
		PublishedAt: time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC),
	}

	s.Require().NoError(s.store.Put(ctx, p, time.Minute))
	got, err := s.store.Get(ctx, "session-1")
	s.Require().NoError(err)
	s.Equal(p.Snapshot, got.Snapshot)
	s.True(p.PublishedAt.Equal(got.PublishedAt))

	ttl, err := s.redis.Client.TTL(ctx, "certproof:snapshot:session-1").Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))

	s.Require().NoError(s.store.Delete(ctx, "session-1"))
	_, err = s.store.Get(ctx, "session-1")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestMissingIsNotFound() {
	_, err := s.store.Get(context.Background(), "nope")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
