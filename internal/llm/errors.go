package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
)

// StatusCoder is implemented by errors that carry an HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// StatusError is a non-2xx response from a backend.
type StatusError struct {
	Provider string
	Code     int
	Body     string
	Err      error // underlying SDK error, if any
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d %s: %s", e.Provider, e.Code, http.StatusText(e.Code), e.Body)
}

func (e *StatusError) Unwrap() error { return e.Err }

// StatusCode implements StatusCoder.
func (e *StatusError) StatusCode() int { return e.Code }

// AuthError is a credential or permission failure. It is never retried.
type AuthError struct {
	Provider string
	Code     int
	Err      error
}

func (e *AuthError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: authentication failed (%d): %v", e.Provider, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: authentication failed: %v", e.Provider, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// StatusCode implements StatusCoder.
func (e *AuthError) StatusCode() int { return e.Code }

// RateLimitError is a 429 or equivalent throttling response.
type RateLimitError struct {
	Provider string
	Err      error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limited: %v", e.Provider, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// StatusCode implements StatusCoder.
func (e *RateLimitError) StatusCode() int { return http.StatusTooManyRequests }

// ConnectionError means the request never produced a response.
type ConnectionError struct {
	Provider string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: connection error: %v", e.Provider, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError means the request did not complete in time.
type TimeoutError struct {
	Provider string
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: request timed out: %v", e.Provider, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// NewStatusError maps an HTTP error response to the matching typed error.
// cause may be nil for hand-rolled clients.
func NewStatusError(provider string, code int, body string, cause error) error {
	base := &StatusError{Provider: provider, Code: code, Body: body, Err: cause}
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthError{Provider: provider, Code: code, Err: base}
	case http.StatusTooManyRequests:
		return &RateLimitError{Provider: provider, Err: base}
	}
	return base
}

// WrapTransportError maps a failure from http.Client.Do to ConnectionError
// or TimeoutError. Caller cancellation passes through untouched.
func WrapTransportError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Provider: provider, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Provider: provider, Err: err}
	}
	var urlErr *url.Error
	var opErr *net.OpError
	if errors.As(err, &urlErr) || errors.As(err, &opErr) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return &ConnectionError{Provider: provider, Err: err}
	}
	return err
}
