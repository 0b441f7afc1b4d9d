package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"marksync/internal/application/port"
)

// RedisStore Redis 固定窗口计数器：INCR + EXPIRE，按 bucket 组 key
// Expiry doubles as eviction, so there is nothing to sweep.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "marksync"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) Incr(ctx context.Context, identity string, window time.Duration) (int64, time.Time, error) {
	windowMs := window.Milliseconds()
	bucket := time.Now().UnixMilli() / windowMs
	key := fmt.Sprintf("%s:rl:%s:%d", s.prefix, identity, bucket)
	resetAt := time.UnixMilli((bucket + 1) * windowMs)

	pipe := s.rdb.Pipeline()
	incr := pipe.Incr(ctx, key)
	// 窗口结束后留一个周期再过期，避免边界上读到已删 key
	pipe.PExpire(ctx, key, 2*window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, err
	}

	return incr.Val(), resetAt, nil
}

var _ port.WindowStore = (*RedisStore)(nil)
