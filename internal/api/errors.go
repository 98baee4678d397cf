package api

import (
	"fmt"
	"net/http"
)

// ErrorKind classifies a failed API call.
type ErrorKind string

const (
	// NetworkFailure means no response reached the client.
	NetworkFailure ErrorKind = "network"

	// HTTPFailure means the server answered with a non-2xx status.
	HTTPFailure ErrorKind = "http"

	// ValidationFailure means the server rejected the request body (422).
	ValidationFailure ErrorKind = "validation"
)

// Error is the one failure shape that crosses the gateway boundary. Every
// client method returns either a result or an *Error; transport errors and
// malformed bodies never leak past it.
type Error struct {
	Kind       ErrorKind
	HTTPStatus int // zero for NetworkFailure
	Message    string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Kind, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// Unauthorized reports whether the error is an HTTP 401, the signal that the
// session is no longer valid. The gateway propagates it; teardown is the
// caller's job.
func (e *Error) Unauthorized() bool {
	return e != nil && e.HTTPStatus == http.StatusUnauthorized
}

func networkError(err error) *Error {
	return &Error{Kind: NetworkFailure, Message: err.Error()}
}
