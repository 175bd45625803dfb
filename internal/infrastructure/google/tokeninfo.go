package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/oksasatya/authcore/internal/domain/identity"
)

const defaultTimeout = 10 * time.Second

type Options struct {
	// ClientID, when set, must match the token's audience.
	ClientID string
	// Endpoint overrides the Google API base URL (tests, emulators).
	Endpoint   string
	HTTPClient *http.Client
}

// TokenInfoClient introspects Google access tokens through the oauth2 tokeninfo endpoint.
// It is built once at startup and is safe for concurrent use.
type TokenInfoClient struct {
	svc      *oauth2.Service
	clientID string
}

func NewTokenInfoClient(ctx context.Context, o Options) (*TokenInfoClient, error) {
	hc := o.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if o.Endpoint != "" {
		ep := o.Endpoint
		if !strings.HasSuffix(ep, "/") {
			ep += "/"
		}
		opts = append(opts, option.WithEndpoint(ep))
	}
	svc, err := oauth2.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google oauth2 service: %w", err)
	}
	return &TokenInfoClient{svc: svc, clientID: o.ClientID}, nil
}

func (c *TokenInfoClient) Introspect(ctx context.Context, token string) (identity.Identity, error) {
	if strings.TrimSpace(token) == "" {
		return identity.Identity{}, identity.ErrInvalidToken
	}
	info, err := c.svc.Tokeninfo().AccessToken(token).Context(ctx).Do()
	if err != nil {
		return identity.Identity{}, classify(ctx, err)
	}
	if c.clientID != "" && info.Audience != c.clientID && info.IssuedTo != c.clientID {
		return identity.Identity{}, fmt.Errorf("%w: audience mismatch", identity.ErrInvalidToken)
	}
	if info.Email == "" {
		return identity.Identity{}, fmt.Errorf("%w: token carries no email", identity.ErrInvalidToken)
	}
	return identity.Identity{
		Email:         info.Email,
		EmailVerified: info.VerifiedEmail,
		Audience:      info.Audience,
		Subject:       info.UserId,
	}, nil
}

// classify separates a rejected token (4xx) from an unreachable or failing provider.
func classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code >= 400 && gerr.Code < 500 {
		return fmt.Errorf("%w: status %d", identity.ErrInvalidToken, gerr.Code)
	}
	return fmt.Errorf("%w: %v", identity.ErrUnavailable, err)
}

var _ identity.Provider = (*TokenInfoClient)(nil)
