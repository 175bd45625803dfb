package notification

import "context"

// TopicConfirmEmail carries ConfirmEmail payloads for freshly registered accounts.
const TopicConfirmEmail = "confirm-email"

// Dispatcher emits events to a downstream channel. Emit is an at-most-once attempt.
type Dispatcher interface {
	Emit(ctx context.Context, topic string, payload any) error
}

type ConfirmEmail struct {
	Email  string `json:"email"`
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
	Token  string `json:"token,omitempty"`
}
