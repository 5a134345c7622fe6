package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "sess:"

// SessionStorage implements fiber.Storage on Redis for the session
// middleware.
type SessionStorage struct {
	client  redis.UniversalClient
	timeout time.Duration
}

// NewSessionStorage wraps client. Every call is bounded by timeout.
func NewSessionStorage(client redis.UniversalClient, timeout time.Duration) *SessionStorage {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &SessionStorage{client: client, timeout: timeout}
}

// Get returns nil without error for a missing key.
func (s *SessionStorage) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	val, err := s.client.Get(ctx, sessionKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

func (s *SessionStorage) Set(key string, val []byte, exp time.Duration) error {
	if key == "" || len(val) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.client.Set(ctx, sessionKeyPrefix+key, val, exp).Err()
}

func (s *SessionStorage) Delete(key string) error {
	if key == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.client.Del(ctx, sessionKeyPrefix+key).Err()
}

// Reset removes every stored session.
func (s *SessionStorage) Reset() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	iter := s.client.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

// Close is a no-op; the client is owned by Redis.
func (s *SessionStorage) Close() error {
	return nil
}
