package pulse_errors

import (
	"errors"
	"net/http"
)

// Common errors
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidInput       = errors.New("invalid input")
	ErrRateLimited        = errors.New("rate limited")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// Error carries a human-readable reason on top of one of the sentinel kinds.
// errors.Is(err, ErrForbidden) holds for Forbidden("...").
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, message string) error {
	return &Error{Kind: kind, Message: message}
}

func Invalid(message string) error      { return newError(ErrInvalidInput, message) }
func Forbidden(message string) error    { return newError(ErrForbidden, message) }
func NotFound(message string) error     { return newError(ErrNotFound, message) }
func Conflict(message string) error     { return newError(ErrConflict, message) }
func Unauthorized(message string) error { return newError(ErrUnauthorized, message) }

func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the stable machine-readable code sent alongside error responses.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_REQUEST"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrRateLimited):
		return "RATE_LIMITED"
	case errors.Is(err, ErrServiceUnavailable):
		return "SERVICE_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}

// PublicMessage is the text safe to show a client. Untyped errors are internal
// and are never echoed back.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	for _, kind := range []error{ErrInvalidInput, ErrUnauthorized, ErrForbidden, ErrNotFound, ErrConflict, ErrRateLimited, ErrServiceUnavailable} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return "internal server error"
}

// IsInternal reports whether err falls outside the known kinds.
func IsInternal(err error) bool {
	return HTTPStatus(err) == http.StatusInternalServerError
}
