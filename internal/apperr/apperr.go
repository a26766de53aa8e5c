// Package apperr defines the domain error taxonomy. Handlers return these
// from domain calls and the boundary maps them uniformly to HTTP statuses;
// anything unrecognized becomes a generic 500 without leaking detail.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	Validation Kind = iota
	Authentication
	Authorization
	NotFound
	Conflict
	RateLimit
	Upstream
	Internal
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error with the given kind and user-facing message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches an underlying cause. The message is still what the client
// sees; the cause is for logs only.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// HTTPStatus maps an error kind to its status code.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case Validation:
		return http.StatusBadRequest
	case Authentication:
		return http.StatusUnauthorized
	case Authorization:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case RateLimit:
		return http.StatusTooManyRequests
	case Upstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// From extracts an *Error, or wraps err as Internal if it isn't one.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return &Error{Kind: Internal, Message: "internal error", Err: err}
}
