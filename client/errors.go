package client

import (
	"errors"
	"fmt"
)

// ErrNotLoggedIn is returned by calls that need a user ID before Login succeeded.
var ErrNotLoggedIn = errors.New("user id not set: call Login first")

// AuthError reports a rejected login or a login response without a user ID.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("login failed: status %d: %s", e.StatusCode, e.Message)
}

// StatusError reports an unexpected HTTP status on a read call.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// transportError marks a failure to get any HTTP response.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// retryable reports whether a read call should be attempted again.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	var te *transportError
	if errors.As(err, &te) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500 || se.StatusCode == 429
	}
	return false
}
