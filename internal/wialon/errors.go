package wialon

import (
	"errors"
	"fmt"
)

// ErrNotAuthenticated is returned by operations that require a session
// when no session id is present. No network call is made in that case.
var ErrNotAuthenticated = errors.New("wialon: not authenticated")

// TransportError covers network failures, timeouts and non-2xx responses
// from the Wialon endpoint. Safe to retry; the client never retries itself.
type TransportError struct {
	Service string
	Status  int // HTTP status, 0 when the request never completed
	Err     error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("wialon: %s returned HTTP %d", e.Service, e.Status)
	}
	return fmt.Sprintf("wialon: %s failed: %v", e.Service, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError means the endpoint answered 200 but reported a logical failure
// through the response's "error" field.
type APIError struct {
	Service string
	Code    int
	Reason  string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("wialon: %s failed with code %d: %s", e.Service, e.Code, e.Reason)
	}
	return fmt.Sprintf("wialon: %s failed with code %d", e.Service, e.Code)
}

// AuthenticationError is raised by the session manager when login fails or
// the login response is missing the expected session fields.
type AuthenticationError struct {
	Reason string
	Err    error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("wialon: authentication failed: %s", e.Reason)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }
