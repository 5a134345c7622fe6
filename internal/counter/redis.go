package counter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Records are hashes: points, window_expires_at (unix ms), blocked_until (unix ms).
// The key TTL is set on creation and replaced only by a block.
var incrementScript = redis.NewScript(`
local created = redis.call('EXISTS', KEYS[1]) == 0
local points = redis.call('HINCRBY', KEYS[1], 'points', ARGV[1])
if created then
  redis.call('HSET', KEYS[1], 'window_expires_at', ARGV[3])
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
local fields = redis.call('HMGET', KEYS[1], 'window_expires_at', 'blocked_until')
return {tostring(points), fields[1], fields[2]}
`)

var blockScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return false
end
local blocked = tonumber(redis.call('HGET', KEYS[1], 'blocked_until') or '0')
if blocked <= tonumber(ARGV[2]) then
  redis.call('HSET', KEYS[1], 'blocked_until', ARGV[3])
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return redis.call('HMGET', KEYS[1], 'points', 'window_expires_at', 'blocked_until')
`)

// RedisStore is a Store shared by every process pointing at the same Redis.
type RedisStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisStore wraps client. The client should be configured without
// retries so failures surface immediately.
func NewRedisStore(client redis.UniversalClient, now func() time.Time) *RedisStore {
	if now == nil {
		now = time.Now
	}
	return &RedisStore{client: client, now: now}
}

func (s *RedisStore) Increment(ctx context.Context, key string, points int64, window time.Duration) (*Record, error) {
	windowEnd := s.now().Add(window)
	res, err := incrementScript.Run(ctx, s.client, []string{key},
		points,
		window.Milliseconds(),
		windowEnd.UnixMilli(),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return parseRecord(res)
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	res, err := s.client.HMGet(ctx, key, "points", "window_expires_at", "blocked_until").Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(res) == 0 || res[0] == nil {
		return nil, nil
	}
	return parseRecord(res)
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Block(ctx context.Context, key string, d time.Duration) (*Record, error) {
	now := s.now()
	res, err := blockScript.Run(ctx, s.client, []string{key},
		d.Milliseconds(),
		now.UnixMilli(),
		now.Add(d).UnixMilli(),
	).Slice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return parseRecord(res)
}

// parseRecord reads [points, window_expires_at, blocked_until].
func parseRecord(fields []interface{}) (*Record, error) {
	if len(fields) != 3 {
		return nil, fmt.Errorf("%w: unexpected record shape (%d fields)", ErrUnavailable, len(fields))
	}
	points, err := toInt64(fields[0])
	if err != nil {
		return nil, fmt.Errorf("%w: points: %v", ErrUnavailable, err)
	}
	rec := &Record{ConsumedPoints: points}
	if ms, err := toInt64(fields[1]); err == nil && ms > 0 {
		rec.WindowExpiresAt = time.UnixMilli(ms)
	}
	if ms, err := toInt64(fields[2]); err == nil && ms > 0 {
		rec.BlockedUntil = time.UnixMilli(ms)
	}
	return rec, nil
}

func toInt64(v interface{}) (int64, error) {
	switch val := v.(type) {
	case int64:
		return val, nil
	case string:
		return strconv.ParseInt(val, 10, 64)
	case nil:
		return 0, errors.New("missing value")
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
