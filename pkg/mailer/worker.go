package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/authcore/config"
	"github.com/oksasatya/authcore/internal/domain/notification"
)

// ErrPoisonMessage wraps failures that retrying cannot fix.
var ErrPoisonMessage = errors.New("undeliverable message")

type Sender interface {
	Send(ctx context.Context, to, subject, text, html string) error
}

// ConfirmEmailHandler turns confirm-email queue messages into sent emails.
type ConfirmEmailHandler struct {
	Cfg     *config.Config
	Sender  Sender
	Logger  *logrus.Logger
	Timeout time.Duration
}

// Handle processes one message body. Errors wrapping ErrPoisonMessage should not be requeued.
func (h *ConfirmEmailHandler) Handle(ctx context.Context, body []byte) error {
	var evt notification.ConfirmEmail
	if err := json.Unmarshal(body, &evt); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrPoisonMessage, err)
	}
	job, err := ConfirmEmailJob(h.Cfg, evt)
	if err != nil {
		return fmt.Errorf("%w: render: %w", ErrPoisonMessage, err)
	}

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := h.Sender.Send(c, job.To, job.Subject, job.Text, job.HTML); err != nil {
		return fmt.Errorf("send confirm email: %w", err)
	}
	if h.Logger != nil {
		h.Logger.WithField("user_id", evt.UserID).Info("confirm email sent")
	}
	return nil
}
