// Package revocation stores the ids of sessions ended by logout until they would have expired.
package revocation

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/socportal/jumuiya/core/session"
)

const keyPrefix = "session:revoked:"

type RedisRevoker struct {
	client  *redis.Client
	nowFunc func() time.Time
}

var _ session.Revoker = (*RedisRevoker)(nil)

func NewRedisRevoker(client *redis.Client) *RedisRevoker {
	return &RedisRevoker{client: client, nowFunc: time.Now}
}

// NewRedisClient parses a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parsing redis url")
	}
	return redis.NewClient(opts), nil
}

// Revoke keeps jti until the token's own expiry; already expired tokens are ignored.
func (r *RedisRevoker) Revoke(ctx context.Context, jti string, until time.Time) error {
	ttl := until.Sub(r.nowFunc())
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, keyPrefix+jti, "1", ttl).Err(); err != nil {
		return errors.Wrap(err, "revoking session")
	}
	return nil
}

func (r *RedisRevoker) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, keyPrefix+jti).Result()
	if err != nil {
		return false, errors.Wrap(err, "checking session revocation")
	}
	return n > 0, nil
}
