package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	mg "github.com/mailgun/mailgun-go/v4"
)

// Mailgun sends rendered emails through one shared Mailgun client.
type Mailgun struct {
	client mg.Mailgun
	sender string
}

func NewMailgun(domain, apiKey, sender string) *Mailgun {
	return &Mailgun{client: mg.NewMailgun(domain, apiKey), sender: sender}
}

// WithAPIBase points the client at another Mailgun region or a test server.
func (m *Mailgun) WithAPIBase(base string) *Mailgun {
	m.client.SetAPIBase(base)
	return m
}

// Send delivers one message. html is optional. A 4xx answer from Mailgun is reported as ErrPoisonMessage.
func (m *Mailgun) Send(ctx context.Context, to, subject, text, html string) error {
	msg := m.client.NewMessage(m.sender, subject, text, to)
	if html != "" {
		msg.SetHtml(html)
	}
	c, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, _, err := m.client.Send(c, msg)
	var ue *mg.UnexpectedResponseError
	if errors.As(err, &ue) && ue.Actual >= http.StatusBadRequest && ue.Actual < http.StatusInternalServerError &&
		ue.Actual != http.StatusTooManyRequests {
		return fmt.Errorf("%w: mailgun rejected message: %v", ErrPoisonMessage, err)
	}
	return err
}

var _ Sender = (*Mailgun)(nil)
