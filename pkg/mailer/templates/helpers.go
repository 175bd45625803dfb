package templates

import (
	"net/url"
	"time"

	"github.com/oksasatya/authcore/config"
)

// Option pattern
type Option func(*EmailData)

func WithVerifyURL(u string) Option { return func(d *EmailData) { d.VerifyURL = u } }

func WithExpiresIn(dur time.Duration) Option {
	return func(d *EmailData) {
		utc := time.Now().Add(dur).UTC()
		d.ExpiresAt = utc
		d.ExpiresAtText = utc.Format("02 January 2006, 15:04 MST")
	}
}

// NewBaseEmailData fills the common fields from config, then applies opts.
func NewBaseEmailData(cfg *config.Config, typ string, name, email, recipient string, opts ...Option) EmailData {
	d := EmailData{
		Name:           name,
		Email:          email,
		RecipientEmail: recipient,
		Type:           typ,

		CompanyName:    cfg.CompanyName,
		CompanyAddress: cfg.CompanyAddress,
		AppName:        cfg.AppName,

		LogoURL:    cfg.LogoURL,
		SupportURL: cfg.SupportURL,
		VerifyURL:  cfg.VerifyEmailURL,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// VerifyLink appends token to base as the "token" query parameter.
func VerifyLink(base, token string) string {
	u, err := url.Parse(base)
	if err != nil || token == "" {
		return base
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func NewConfirmEmailData(cfg *config.Config, name, email, token string, opts ...Option) map[string]any {
	opts = append([]Option{
		WithVerifyURL(VerifyLink(cfg.VerifyEmailURL, token)),
		WithExpiresIn(cfg.VerifyTokenTTL),
	}, opts...)
	d := NewBaseEmailData(cfg, ConfirmEmail, name, email, email, opts...)
	return ToMap(d)
}
