// Package apperr defines the typed error kinds used at the HTTP/SSE
// boundary to pick status codes and wire error codes (spec §7).
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the design-level error kinds from spec.md §7.
type Kind string

const (
	Validation   Kind = "validation"
	NotFound     Kind = "not_found"
	Conflict     Kind = "conflict"
	Permission   Kind = "permission"
	Timeout      Kind = "timeout"
	Cancelled    Kind = "cancelled"
	Shutdown     Kind = "shutdown"
	ProviderErr  Kind = "provider_error"
	Internal     Kind = "internal"
)

// Error wraps an underlying error with a Kind so handlers can map it to
// an HTTP status / wire code without string-matching messages.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a Kind-tagged error.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap tags an existing error with a Kind.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from err, defaulting to Internal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}

// HTTPStatus maps a Kind to the HTTP status code used by the REST surface.
func HTTPStatus(k Kind) int {
	switch k {
	case Validation:
		return 400
	case NotFound:
		return 404
	case Conflict:
		return 409
	case Permission:
		return 403
	case Timeout:
		return 504
	case Cancelled, Shutdown:
		return 499
	case ProviderErr:
		return 502
	default:
		return 500
	}
}
