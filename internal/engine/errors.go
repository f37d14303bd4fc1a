// internal/engine/errors.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Common engine errors
var (
	ErrTimeout      = errors.New("request timeout")
	ErrInvalidURL   = errors.New("invalid URL")
	ErrNetworkError = errors.New("network error")
	ErrBodyRead     = errors.New("failed to read response body")
	ErrBodyTooLarge = errors.New("response body too large")
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	ErrCodeTimeout      ErrorCode = "TIMEOUT"
	ErrCodeValidation   ErrorCode = "VALIDATION"
	ErrCodeNetworkError ErrorCode = "NETWORK_ERROR"
	ErrCodeBodyRead     ErrorCode = "BODY_READ"
	ErrCodeTooLarge     ErrorCode = "TOO_LARGE"
)

// EngineError wraps errors with additional context
type EngineError struct {
	Code       ErrorCode
	Message    string
	Underlying error
	Details    map[string]interface{}
}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *EngineError) Unwrap() error {
	return e.Underlying
}

// Is checks if the error matches the target
func (e *EngineError) Is(target error) bool {
	if t, ok := target.(*EngineError); ok {
		return e.Code == t.Code
	}
	switch e.Code {
	case ErrCodeTimeout:
		return target == ErrTimeout
	case ErrCodeValidation:
		return target == ErrInvalidURL
	case ErrCodeNetworkError:
		return target == ErrNetworkError
	case ErrCodeBodyRead:
		return target == ErrBodyRead
	case ErrCodeTooLarge:
		return target == ErrBodyTooLarge
	}
	return false
}

// NewEngineError creates a new EngineError
func NewEngineError(code ErrorCode, message string, err error) *EngineError {
	return &EngineError{
		Code:       code,
		Message:    message,
		Underlying: err,
		Details:    make(map[string]interface{}),
	}
}

// WithDetail adds a detail to the error
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	e.Details[key] = value
	return e
}

// classifyTransportError maps an error from http.Client.Do to an EngineError.
func classifyTransportError(err error) *EngineError {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewEngineError(ErrCodeTimeout, "request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewEngineError(ErrCodeTimeout, "request timed out", err)
	}
	return NewEngineError(ErrCodeNetworkError, "failed to fetch URL", err)
}
