package limiter

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a fixed window limiter using INCR with a per-window expiry.
type Redis struct {
	client redis.Cmdable
	rules  Rules
	prefix string
}

// NewRedis constructs a Redis-backed limiter.
func NewRedis(client redis.Cmdable, rules Rules) *Redis {
	return &Redis{client: client, rules: rules, prefix: "keygate:rl"}
}

func (l *Redis) key(bucket, key string) string {
	return fmt.Sprintf("%s:%s:%s", l.prefix, bucket, hex.EncodeToString(HashKey(key)))
}

// Allow increments the window counter. A counter without a TTL (first hit of
// the window) gets one, so the window starts at its first request.
func (l *Redis) Allow(ctx context.Context, bucket, key string) (bool, time.Duration, error) {
	rule, ok := l.rules[bucket]
	if !ok || rule.Limit <= 0 {
		return true, 0, nil
	}
	k := l.key(bucket, key)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	ttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("redis limiter: %w", err)
	}

	retry := ttl.Val()
	if retry < 0 {
		if err := l.client.PExpire(ctx, k, rule.Window).Err(); err != nil {
			return false, 0, fmt.Errorf("redis limiter: expire: %w", err)
		}
		retry = rule.Window
	}
	if incr.Val() > int64(rule.Limit) {
		return false, retry, nil
	}
	return true, 0, nil
}
