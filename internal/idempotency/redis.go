package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "zenithpay:idempotency:"

// RedisStore backs the idempotency cache with redis so a multi-instance
// deployment deduplicates across processes. Records are written with NX
// semantics (first writer wins) and expire via redis TTL, so no sweep is
// needed.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Record, bool, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading idempotency key: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, fmt.Errorf("decoding idempotency record: %w", err)
	}
	if time.Now().After(rec.ExpiresAt) {
		return nil, false, nil
	}
	return &rec, true, nil
}

func (s *RedisStore) Put(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding idempotency record: %w", err)
	}
	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.SetNX(ctx, redisKeyPrefix+rec.Key, data, ttl).Err(); err != nil {
		return fmt.Errorf("writing idempotency key: %w", err)
	}
	return nil
}
