// Package dedup tracks processed call ids so webhook redeliveries are
// ignored exactly once.
package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the processed-call-id set consulted by the ingestion buffer.
type Store interface {
	// MarkIfNew records the id and reports whether it was unseen. A false
	// result means the id was already processed.
	MarkIfNew(ctx context.Context, callID string) (bool, error)
	// Count returns the number of tracked ids, for diagnostics.
	Count(ctx context.Context) (int64, error)
}

// DefaultTTL bounds the processed-id set. A month comfortably outlives the
// provider's webhook redelivery horizon.
const DefaultTTL = 30 * 24 * time.Hour

const keyPrefix = "callwatch:processed:"

// RedisStore keeps processed ids as Redis keys with a TTL, one SET NX round
// trip per call.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps an existing client. A zero ttl falls back to
// DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) MarkIfNew(ctx context.Context, callID string) (bool, error) {
	return s.client.SetNX(ctx, keyPrefix+callID, 1, s.ttl).Result()
}

func (s *RedisStore) Count(ctx context.Context) (int64, error) {
	var total int64
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		total++
	}
	return total, iter.Err()
}
