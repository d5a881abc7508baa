package gateway

import (
	"context"
	"errors"
	"fmt"
)

const (
	genericMessage = "Request failed"
	expiredMessage = "Session expired, please log in again"
)

// ValidationError is a local precondition failure. It is produced before any
// request is built, so nothing reaches the network.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return e.Message
}

// Invalid builds a ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// BackendError is any non-2xx, non-401 response.
type BackendError struct {
	StatusCode int
	// Message is the backend's error text, or the caller's fallback when the
	// body carried none (Generic is then true).
	Message   string
	Generic   bool
	RequestID string
	Raw       map[string]any
}

func (e *BackendError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("backend error: status=%d request_id=%s message=%s", e.StatusCode, e.RequestID, e.Message)
	}
	return fmt.Sprintf("backend error: status=%d message=%s", e.StatusCode, e.Message)
}

// AuthExpiredError is returned for 401 responses after the gateway has
// already cleared the session and notified its listeners. Callers must not
// repeat that handling.
type AuthExpiredError struct{ *BackendError }

func (e *AuthExpiredError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.BackendError.Error())
}

// NetworkError means the request never produced a response.
type NetworkError struct {
	Method   string
	URL      string
	Fallback string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a local validation failure.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsAuthExpired reports whether err came from a 401 response.
func IsAuthExpired(err error) bool {
	var a *AuthExpiredError
	return errors.As(err, &a)
}

// UserMessage returns the single line a screen shows for a failed action.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		v  *ValidationError
		a  *AuthExpiredError
		b  *BackendError
		ne *NetworkError
	)
	switch {
	case errors.As(err, &v):
		return v.Message
	case errors.As(err, &a):
		if a.BackendError == nil || a.Generic || a.Message == "" {
			return expiredMessage
		}
		return a.Message
	case errors.As(err, &b):
		return b.Message
	case errors.As(err, &ne):
		if ne.Fallback != "" {
			return ne.Fallback
		}
		return genericMessage
	case errors.Is(err, context.Canceled):
		return "Request cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "Request timed out"
	default:
		return err.Error()
	}
}

// ErrStale marks a result that arrived after the session or the selection it
// was requested under had changed. The result was dropped.
var ErrStale = errors.New("result discarded: session or selection changed")
