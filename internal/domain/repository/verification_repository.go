package repository

import (
	"context"
	"errors"
)

// ErrVerificationTokenNotFound is returned for unknown, expired or already used tokens.
var ErrVerificationTokenNotFound = errors.New("verification token not found")

// VerificationTokenRepository stores single-use email verification tokens.
type VerificationTokenRepository interface {
	Issue(ctx context.Context, userID string) (string, error)
	Consume(ctx context.Context, token string) (string, error)
}
