package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode represents a specific error type for better error handling
type ErrorCode string

const (
	// Dispatch errors
	ErrCodeUnknownTarget      ErrorCode = "UNKNOWN_TARGET"
	ErrCodeInvalidPayload     ErrorCode = "INVALID_PAYLOAD"
	ErrCodeBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"

	// Configuration errors
	ErrCodeConfigRejected ErrorCode = "CONFIG_REJECTED"
	ErrCodeConfigLoad     ErrorCode = "CONFIG_LOAD_FAILED"

	// Request processing errors
	ErrCodeInvalidRequest       ErrorCode = "INVALID_REQUEST"
	ErrCodeAuthenticationFailed ErrorCode = "AUTHENTICATION_FAILED"
	ErrCodeRateLimitExceeded    ErrorCode = "RATE_LIMIT_EXCEEDED"

	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// DispatchError is a structured error that travels across the router boundary
type DispatchError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	RequestID string                 `json:"request_id,omitempty"`
	Component string                 `json:"component,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Cause     error                  `json:"-"`
}

// Sentinels for errors.Is. Matching is by code only.
var (
	ErrUnknownTarget      = &DispatchError{Code: ErrCodeUnknownTarget}
	ErrInvalidPayload     = &DispatchError{Code: ErrCodeInvalidPayload}
	ErrBackendUnavailable = &DispatchError{Code: ErrCodeBackendUnavailable}
	ErrConfigRejected     = &DispatchError{Code: ErrCodeConfigRejected}
	ErrInvalidRequest     = &DispatchError{Code: ErrCodeInvalidRequest}
)

// Error implements the error interface
func (e *DispatchError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("[%s][%s] %s: %s", e.RequestID, e.Code, e.Component, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Component, e.Message)
}

// Unwrap returns the underlying error
func (e *DispatchError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error code
func (e *DispatchError) Is(target error) bool {
	if t, ok := target.(*DispatchError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithMetadata adds metadata to the error
func (e *DispatchError) WithMetadata(key string, value interface{}) *DispatchError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// WithRequestID tags the error with the correlation ID of the dispatch
func (e *DispatchError) WithRequestID(requestID string) *DispatchError {
	e.RequestID = requestID
	return e
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *DispatchError) HTTPStatusCode() int {
	switch e.Code {
	case ErrCodeInvalidRequest, ErrCodeInvalidPayload, ErrCodeConfigRejected:
		return http.StatusBadRequest
	case ErrCodeConfigLoad:
		return http.StatusUnprocessableEntity
	case ErrCodeAuthenticationFailed:
		return http.StatusUnauthorized
	case ErrCodeUnknownTarget:
		return http.StatusNotFound
	case ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case ErrCodeBackendUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewError creates a new DispatchError
func NewError(code ErrorCode, component, message string) *DispatchError {
	return &DispatchError{
		Code:      code,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// WrapError wraps an existing error with DispatchError structure
func WrapError(err error, code ErrorCode, component, message string) *DispatchError {
	if err == nil {
		return nil
	}

	return &DispatchError{
		Code:      code,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     err,
		Details:   err.Error(),
	}
}

// NewUnknownTargetError reports a target that is not in the registry
func NewUnknownTargetError(target string) *DispatchError {
	return NewError(
		ErrCodeUnknownTarget,
		"router",
		fmt.Sprintf("target %q is not registered", target),
	).WithMetadata("target", target)
}

// NewInvalidPayloadError reports a payload the backend refuses to compute on
func NewInvalidPayloadError(backend, reason string) *DispatchError {
	return NewError(
		ErrCodeInvalidPayload,
		"stand",
		fmt.Sprintf("invalid payload for %s: %s", backend, reason),
	).WithMetadata("backend", backend)
}

// NewBackendUnavailableError reports a failed or timed out backend call
func NewBackendUnavailableError(backend string, cause error) *DispatchError {
	err := NewError(ErrCodeBackendUnavailable, "router", fmt.Sprintf("backend %s is unavailable", backend))
	if cause != nil {
		err.Cause = cause
		err.Details = cause.Error()
	}
	return err.WithMetadata("backend", backend)
}

// NewConfigRejectedError reports a config blob that could not be applied
func NewConfigRejectedError(backend, reason string) *DispatchError {
	return NewError(
		ErrCodeConfigRejected,
		"stand",
		fmt.Sprintf("config rejected for %s: %s", backend, reason),
	).WithMetadata("backend", backend)
}

// NewInvalidRequestError reports a malformed inbound request
func NewInvalidRequestError(reason string) *DispatchError {
	return NewError(ErrCodeInvalidRequest, "handler", reason)
}

// IsDispatchError checks if an error is a DispatchError
func IsDispatchError(err error) bool {
	var dErr *DispatchError
	return errors.As(err, &dErr)
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var dErr *DispatchError
	if errors.As(err, &dErr) {
		return dErr.Code
	}
	return ErrCodeInternalError
}

// GetHTTPStatusCode gets the appropriate HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	var dErr *DispatchError
	if errors.As(err, &dErr) {
		return dErr.HTTPStatusCode()
	}
	return http.StatusInternalServerError
}

// AsDispatchError returns the first DispatchError in err's chain
func AsDispatchError(err error) (*DispatchError, bool) {
	var dErr *DispatchError
	if errors.As(err, &dErr) {
		return dErr, true
	}
	return nil, false
}
