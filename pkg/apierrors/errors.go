package apierrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers
type Kind string

const (
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindValidation      Kind = "validation"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindUpstream        Kind = "upstream_failure"
	KindRateLimited     Kind = "rate_limited"
	KindInternal        Kind = "internal"
)

// HTTPStatus returns the status code reported for the kind
func (k Kind) HTTPStatus() int {
	switch k {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUpstream:
		return http.StatusBadGateway
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified error with a client-safe message
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind that keeps the cause for logging
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Unauthenticated(message string) *Error { return New(KindUnauthenticated, message) }

func Forbidden(message string) *Error { return New(KindForbidden, message) }

func Forbiddenf(format string, args ...interface{}) *Error {
	return New(KindForbidden, fmt.Sprintf(format, args...))
}

func Validation(message string) *Error { return New(KindValidation, message) }

func Validationf(format string, args ...interface{}) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

func NotFound(message string) *Error { return New(KindNotFound, message) }

func NotFoundf(format string, args ...interface{}) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

func Conflict(message string) *Error { return New(KindConflict, message) }

func RateLimited(message string) *Error { return New(KindRateLimited, message) }

// Upstream reports a failed call to an external collaborator
func Upstream(message string, err error) *Error { return Wrap(KindUpstream, message, err) }

// Internal reports an unexpected failure; the message is replaced before it reaches clients
func Internal(message string, err error) *Error { return Wrap(KindInternal, message, err) }

// KindOf returns the kind of the first *Error in the chain, or KindInternal
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// PublicMessage returns the message that may be shown to a client
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return "internal server error"
}
