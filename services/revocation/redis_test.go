package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRevoker(t *testing.T) (*RedisRevoker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRevoker(client), mr
}

func TestRedisRevoker(t *testing.T) {
	ctx := context.Background()
	r, mr := newRevoker(t)

	revoked, err := r.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, r.Revoke(ctx, "jti-1", time.Now().Add(time.Hour)))
	revoked, err = r.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	ttl := mr.TTL(keyPrefix + "jti-1")
	assert.True(t, ttl > 59*time.Minute && ttl <= time.Hour, "ttl: %s", ttl)

	// entries disappear once the token would have expired anyway
	mr.FastForward(time.Hour + time.Second)
	revoked, err = r.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRedisRevoker_ExpiredToken(t *testing.T) {
	ctx := context.Background()
	r, mr := newRevoker(t)

	require.NoError(t, r.Revoke(ctx, "old", time.Now().Add(-time.Minute)))
	assert.False(t, mr.Exists(keyPrefix+"old"))
}

func TestRedisRevoker_StoreDown(t *testing.T) {
	ctx := context.Background()
	r, mr := newRevoker(t)
	mr.Close()

	_, err := r.IsRevoked(ctx, "jti-1")
	assert.Error(t, err)
	assert.Error(t, r.Revoke(ctx, "jti-1", time.Now().Add(time.Hour)))
}

func TestNewRedisClient(t *testing.T) {
	_, err := NewRedisClient("not a url")
	assert.Error(t, err)

	client, err := NewRedisClient("redis://localhost:6379/1")
	require.NoError(t, err)
	assert.Equal(t, 1, client.Options().DB)
	_ = client.Close()
}
