package persistence

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ fiber.Storage = (*SessionStorage)(nil)

func newTestStorage(t *testing.T) (*SessionStorage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionStorage(client, time.Second), mr
}

func TestSessionStorage_RoundTripAndExpiry(t *testing.T) {
	s, mr := newTestStorage(t)

	val, err := s.Get("missing")
	require.NoError(t, err)
	assert.Nil(t, val)

	require.NoError(t, s.Set("abc", []byte(`{"userId":"u1"}`), time.Hour))
	val, err = s.Get("abc")
	require.NoError(t, err)
	assert.Equal(t, `{"userId":"u1"}`, string(val))
	assert.True(t, mr.Exists("sess:abc"))

	mr.FastForward(time.Hour + time.Second)
	val, err = s.Get("abc")
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestSessionStorage_DeleteAndReset(t *testing.T) {
	s, mr := newTestStorage(t)
	require.NoError(t, mr.Set("login_fail_ip_per_day:1.2.3.4", "keep"))

	require.NoError(t, s.Set("a", []byte("1"), 0))
	require.NoError(t, s.Set("b", []byte("2"), 0))
	require.NoError(t, s.Delete("a"))
	assert.False(t, mr.Exists("sess:a"))

	require.NoError(t, s.Reset())
	assert.False(t, mr.Exists("sess:b"))
	assert.True(t, mr.Exists("login_fail_ip_per_day:1.2.3.4"), "reset only touches sessions")
}
