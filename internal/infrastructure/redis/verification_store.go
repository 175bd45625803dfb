package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/oksasatya/authcore/internal/domain/repository"
	"github.com/oksasatya/authcore/pkg/helpers"
)

const defaultVerifyTTL = 24 * time.Hour

type verification struct {
	UserID   string `json:"user_id"`
	IssuedAt string `json:"issued_at"`
}

// VerificationStore keeps single-use email verification tokens in Redis until they expire.
type VerificationStore struct {
	rdb goredis.Cmdable
	ttl time.Duration
}

func NewVerificationStore(rdb goredis.Cmdable, ttl time.Duration) *VerificationStore {
	if ttl <= 0 {
		ttl = defaultVerifyTTL
	}
	return &VerificationStore{rdb: rdb, ttl: ttl}
}

func (s *VerificationStore) Issue(ctx context.Context, userID string) (string, error) {
	tok, err := helpers.GenURLToken(32)
	if err != nil {
		return "", fmt.Errorf("generate verification token: %w", err)
	}
	v := verification{UserID: userID, IssuedAt: time.Now().UTC().Format(time.RFC3339Nano)}
	if err := helpers.RedisSetJSON(ctx, s.rdb, helpers.KeyEmailVerifyToken(tok), v, s.ttl); err != nil {
		return "", fmt.Errorf("store verification token: %w", err)
	}
	return tok, nil
}

// Consume returns the token's user id and deletes it, so a token works once.
func (s *VerificationStore) Consume(ctx context.Context, token string) (string, error) {
	var v verification
	found, err := helpers.RedisGetDelJSON(ctx, s.rdb, helpers.KeyEmailVerifyToken(token), &v)
	if err != nil {
		return "", fmt.Errorf("consume verification token: %w", err)
	}
	if !found || v.UserID == "" {
		return "", repository.ErrVerificationTokenNotFound
	}
	return v.UserID, nil
}

var _ repository.VerificationTokenRepository = (*VerificationStore)(nil)
