package identity

import (
	"context"
	"errors"
)

var (
	// ErrInvalidToken means the provider rejected the OAuth token.
	ErrInvalidToken = errors.New("oauth token rejected by provider")
	// ErrUnavailable means the provider could not be reached or failed.
	ErrUnavailable = errors.New("identity provider unavailable")
)

// Identity is what the provider vouches for about a token's owner.
type Identity struct {
	Email         string
	EmailVerified bool
	Audience      string
	Subject       string
}

// Provider introspects externally obtained OAuth tokens.
type Provider interface {
	Introspect(ctx context.Context, token string) (Identity, error)
}
