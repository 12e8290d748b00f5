// Package redis stores rate-limit buckets in Redis so every gateway instance
// shares the same counters.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lborres/bantay/core"
)

const DefaultKeyPrefix = "bantay:rl:"

// Each bucket is a hash {n: attempts, w: window ms} that expires with its
// window. KEYS[1] bucket, ARGV[1] limit (-1 counts unconditionally),
// ARGV[2] window ms. Returns {attempts, pttl ms, window ms, allowed}.
var hitScript = goredis.NewScript(`
local n = tonumber(redis.call('HGET', KEYS[1], 'n') or '0')
local limit = tonumber(ARGV[1])
if limit >= 0 and n >= limit and n > 0 then
  return {n, redis.call('PTTL', KEYS[1]), tonumber(redis.call('HGET', KEYS[1], 'w')), 0}
end
n = redis.call('HINCRBY', KEYS[1], 'n', 1)
if n == 1 then
  redis.call('HSET', KEYS[1], 'w', ARGV[2])
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return {n, redis.call('PTTL', KEYS[1]), tonumber(redis.call('HGET', KEYS[1], 'w')), 1}
`)

// Returns {attempts, pttl ms, window ms}; attempts is 0 for a missing bucket.
var peekScript = goredis.NewScript(`
local n = redis.call('HGET', KEYS[1], 'n')
if not n then
  return {0, 0, 0}
end
return {tonumber(n), redis.call('PTTL', KEYS[1]), tonumber(redis.call('HGET', KEYS[1], 'w'))}
`)

// RateLimitStore implements core.RateLimitStore on Redis. Buckets expire on
// their own, so it needs no sweeping.
type RateLimitStore struct {
	client goredis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ core.RateLimitStore = (*RateLimitStore)(nil)

func NewRateLimitStore(client goredis.UniversalClient, prefix string) *RateLimitStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RateLimitStore{client: client, prefix: prefix, now: time.Now}
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*goredis.Client, error) {
	opt, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := goredis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return client, nil
}

func (s *RateLimitStore) Hit(ctx context.Context, key string, limit int, window time.Duration) (core.RateLimitBucket, bool, error) {
	vals, err := hitScript.Run(ctx, s.client, []string{s.prefix + key}, limit, window.Milliseconds()).Int64Slice()
	if err != nil {
		return core.RateLimitBucket{}, false, fmt.Errorf("rate limit hit: %w", err)
	}
	return s.bucket(key, vals), vals[3] == 1, nil
}

func (s *RateLimitStore) Increment(ctx context.Context, key string, window time.Duration) (core.RateLimitBucket, error) {
	vals, err := hitScript.Run(ctx, s.client, []string{s.prefix + key}, -1, window.Milliseconds()).Int64Slice()
	if err != nil {
		return core.RateLimitBucket{}, fmt.Errorf("rate limit increment: %w", err)
	}
	return s.bucket(key, vals), nil
}

func (s *RateLimitStore) Peek(ctx context.Context, key string) (core.RateLimitBucket, bool, error) {
	vals, err := peekScript.Run(ctx, s.client, []string{s.prefix + key}).Int64Slice()
	if err != nil {
		return core.RateLimitBucket{}, false, fmt.Errorf("rate limit peek: %w", err)
	}
	if vals[0] == 0 {
		return core.RateLimitBucket{}, false, nil
	}
	return s.bucket(key, vals), true, nil
}

func (s *RateLimitStore) Clear(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("rate limit clear: %w", err)
	}
	return nil
}

// bucket rebuilds the window start from the remaining TTL.
func (s *RateLimitStore) bucket(key string, vals []int64) core.RateLimitBucket {
	window := time.Duration(vals[2]) * time.Millisecond
	ttl := time.Duration(vals[1]) * time.Millisecond
	if ttl < 0 || ttl > window {
		ttl = window
	}
	return core.RateLimitBucket{
		Key:         key,
		Attempts:    int(vals[0]),
		WindowStart: s.now().Add(ttl - window),
		Window:      window,
	}
}
