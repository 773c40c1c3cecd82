package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs the limiter with Redis counters so admission decisions
// stay consistent across horizontally scaled instances. Keys expire with
// their window; no sweep is needed.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func NewRedisStoreFromURL(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisStore{rdb: redis.NewClient(opts)}, nil
}

const keyPrefix = "ratelimit:"

func (s *RedisStore) Incr(ctx context.Context, key string, windowLen time.Duration) (int64, time.Time, error) {
	k := keyPrefix + key

	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, windowLen)
	ttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, err
	}

	remaining := ttl.Val()
	if remaining < 0 {
		// Key exists without a TTL (should not happen); treat as a fresh window.
		remaining = windowLen
	}
	return incr.Val(), time.Now().Add(remaining), nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
