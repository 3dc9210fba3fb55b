package auth

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"
)

var ErrTokenBlacklisted = errors.New("token is blacklisted")

// Verifier resolves a bearer credential to a user id. When a redis
// client is configured, tokens blacklisted by the HTTP API (logout)
// are rejected before signature verification.
type Verifier struct {
	jwt   *JWTManager
	redis *redis.Client
}

// NewVerifier builds a Verifier. rdb may be nil, which disables the
// blacklist check.
func NewVerifier(jwtManager *JWTManager, rdb *redis.Client) *Verifier {
	return &Verifier{jwt: jwtManager, redis: rdb}
}

func (v *Verifier) Verify(ctx context.Context, credential string) (string, error) {
	if v.redis != nil {
		exists, err := v.redis.Exists(ctx, "blacklist:"+credential).Result()
		if err != nil {
			return "", err
		}
		if exists > 0 {
			return "", ErrTokenBlacklisted
		}
	}
	return v.jwt.Verify(credential)
}
