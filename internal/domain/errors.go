package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ValidationError reports a malformed draft or raw record.
// It is returned before any state is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AuthError reports a missing or rejected credential.
type AuthError struct {
	Op     string
	Status int // 0 when no request was sent
	Err    error
}

func (e *AuthError) Error() string {
	msg := e.Op + ": unauthorized"
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// ErrNoCredential is wrapped by AuthError when no credential is available.
var ErrNoCredential = errors.New("no credential")

// NetworkError reports a transport failure or a non-2xx response that is not an auth failure.
type NetworkError struct {
	Op      string
	Status  int // 0 for transport failures
	Timeout bool
	Err     error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s: timed out: %v", e.Op, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *NetworkError) Unwrap() error { return e.Err }

// NotFound reports whether the remote side answered 404.
func (e *NetworkError) NotFound() bool { return e.Status == http.StatusNotFound }

// ChannelParseError reports a push message that could not be understood.
// It is logged and dropped, never surfaced through the store.
type ChannelParseError struct {
	Type string // envelope type, when it could be read
	Err  error
}

func (e *ChannelParseError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("parse %q message: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("parse message: %v", e.Err)
}

func (e *ChannelParseError) Unwrap() error { return e.Err }

// IsValidation reports whether err is or wraps a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsAuth reports whether err is or wraps an *AuthError.
func IsAuth(err error) bool {
	var a *AuthError
	return errors.As(err, &a)
}

// IsNetwork reports whether err is or wraps a *NetworkError.
func IsNetwork(err error) bool {
	var n *NetworkError
	return errors.As(err, &n)
}

// IsNotFound reports whether err is a NetworkError for a 404 response.
func IsNotFound(err error) bool {
	var n *NetworkError
	return errors.As(err, &n) && n.NotFound()
}
