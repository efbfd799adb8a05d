package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"certproof/pkg/platform/sentinel"
)

const snapshotKeyPrefix = "certproof:snapshot:"

// RedisStore shares snapshots across instances. Entries use SET with TTL.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Put(ctx context.Context, p Published, ttl time.Duration) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, snapshotKeyPrefix+p.SessionID, payload, ttl).Err(); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (Published, error) {
	raw, err := s.client.Get(ctx, snapshotKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Published{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Published{}, fmt.Errorf("load snapshot: %w", err)
	}
	var p Published
	if err := json.Unmarshal(raw, &p); err != nil {
		return Published{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return p, nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, snapshotKeyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}
