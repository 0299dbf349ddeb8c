package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWindow is a fixed-window counter shared by every process pointing at the same Redis.
type RedisWindow struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

func NewRedisWindow(client redis.Cmdable, prefix string) *RedisWindow {
	if prefix == "" {
		prefix = "followup:ratelimit"
	}
	return &RedisWindow{client: client, prefix: prefix, now: time.Now}
}

func (w *RedisWindow) windowKey(key string, q Quota, now time.Time) (string, time.Time) {
	windowMs := q.Window.Milliseconds()
	slot := now.UnixMilli() / windowMs
	return fmt.Sprintf("%s:%s:%d", w.prefix, key, slot), time.UnixMilli((slot + 1) * windowMs)
}

func (w *RedisWindow) Reserve(ctx context.Context, key string, q Quota) (bool, time.Duration, error) {
	now := w.now()
	redisKey, next := w.windowKey(key, q, now)

	count, err := w.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, 0, fmt.Errorf("incr %s: %w", redisKey, err)
	}
	if count == 1 {
		if err := w.client.PExpire(ctx, redisKey, q.Window).Err(); err != nil {
			return false, 0, fmt.Errorf("pexpire %s: %w", redisKey, err)
		}
	}

	if count <= int64(q.Requests) {
		return true, 0, nil
	}
	return false, next.Sub(now), nil
}
