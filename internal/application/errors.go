package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/oksasatya/authcore/pkg/validation"
)

// Kind classifies an auth failure; it decides the status code a caller sees.
type Kind string

const (
	KindConflict            Kind = "conflict"
	KindNotFound            Kind = "not_found"
	KindUnauthorized        Kind = "unauthorized"
	KindInvalidToken        Kind = "invalid_token"
	KindExpiredToken        Kind = "expired_token"
	KindInvalidOAuthToken   Kind = "invalid_oauth_token"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindCanceled            Kind = "canceled"
	KindValidation          Kind = "validation"
	KindInternal            Kind = "internal"
)

// statusClientClosedRequest is the de-facto status for a request the caller abandoned.
const statusClientClosedRequest = 499

// Sentinels for errors.Is; any *Error of the same kind matches them.
var (
	ErrConflict            = &Error{Kind: KindConflict}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrUnauthorized        = &Error{Kind: KindUnauthorized}
	ErrInvalidToken        = &Error{Kind: KindInvalidToken}
	ErrExpiredToken        = &Error{Kind: KindExpiredToken}
	ErrInvalidOAuthToken   = &Error{Kind: KindInvalidOAuthToken}
	ErrUpstreamUnavailable = &Error{Kind: KindUpstreamUnavailable}
	ErrCanceled            = &Error{Kind: KindCanceled}
	ErrValidation          = &Error{Kind: KindValidation}
	ErrInternal            = &Error{Kind: KindInternal}
)

// Error is the typed failure returned by every AuthService operation.
type Error struct {
	Kind    Kind
	Message string
	Err     error
	details map[string]string
}

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func (e *Error) Status() int {
	switch e.Kind {
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized, KindInvalidToken, KindExpiredToken, KindInvalidOAuthToken:
		return http.StatusUnauthorized
	case KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	case KindCanceled:
		return statusClientClosedRequest
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (e *Error) Code() string { return string(e.Kind) }

// PublicMessage is the text safe to show a caller; internal causes are never included.
func (e *Error) PublicMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return http.StatusText(e.Status())
}

func (e *Error) Details() map[string]string { return e.details }

func validationError(err error) *Error {
	e := newError(KindValidation, "invalid payload", err)
	e.details = validation.ToDetails(err)
	return e
}

// storeError maps a directory/provider failure, keeping cancellation distinct from outages.
func storeError(ctx context.Context, op string, err error) *Error {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return newError(KindCanceled, "request canceled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindUpstreamUnavailable, "upstream timeout", err)
	}
	return newError(KindInternal, op, err)
}

// InvalidPayload wraps a request decoding failure as a validation error.
func InvalidPayload(err error) *Error {
	return validationError(err)
}
