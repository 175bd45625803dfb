package mailer

import (
	"errors"
	"strings"

	"github.com/oksasatya/authcore/config"
	"github.com/oksasatya/authcore/internal/domain/notification"
	mailtpl "github.com/oksasatya/authcore/pkg/mailer/templates"
)

// Messages failing with these can never be delivered.
var (
	ErrMissingRecipient = errors.New("email job has no recipient")
	ErrMissingToken     = errors.New("confirm email has no verification token")
)

// EmailJob is a rendered email ready for delivery.
type EmailJob struct {
	To      string `json:"to"`
	Subject string `json:"subject,omitempty"`
	Text    string `json:"text,omitempty"`
	HTML    string `json:"html,omitempty"`
}

// ConfirmEmailJob renders the confirmation email for evt.
func ConfirmEmailJob(cfg *config.Config, evt notification.ConfirmEmail) (EmailJob, error) {
	to := strings.TrimSpace(evt.Email)
	if to == "" {
		return EmailJob{}, ErrMissingRecipient
	}
	if strings.TrimSpace(evt.Token) == "" {
		return EmailJob{}, ErrMissingToken
	}
	data := mailtpl.NewConfirmEmailData(cfg, evt.Name, to, evt.Token)
	subject, text, html, err := mailtpl.Render(mailtpl.ConfirmEmail, data)
	if err != nil {
		return EmailJob{}, err
	}
	return EmailJob{To: to, Subject: subject, Text: text, HTML: html}, nil
}
