package core

import (
	"errors"
	"fmt"
)

// Error is the error shape shared by the client, the gateway and the wire.
type Error struct {
	Type          ErrorType `json:"type"`
	Message       string    `json:"message"`
	Param         string    `json:"param,omitempty"`
	Code          string    `json:"code,omitempty"`
	RequestID     string    `json:"request_id,omitempty"`
	ProviderError any       `json:"provider_error,omitempty"`
	RetryAfter    *int      `json:"retry_after,omitempty"`

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrAuthentication ErrorType = "authentication_error"
	ErrPermission     ErrorType = "permission_error"
	ErrNotFound       ErrorType = "not_found_error"
	ErrRateLimit      ErrorType = "rate_limit_error"
	ErrAPI            ErrorType = "api_error"
	ErrOverloaded     ErrorType = "overloaded_error"
	ErrProvider       ErrorType = "provider_error"

	// Camera or microphone denied or unavailable. Never retried automatically.
	ErrMediaAccess ErrorType = "media_access_error"
	// Live stream open/send/receive failure.
	ErrTransport ErrorType = "transport_error"
	// Malformed, timed out or failed AI backend response.
	ErrGateway ErrorType = "gateway_error"
	// Identity failures; Code carries the specific case.
	ErrAuth ErrorType = "auth_error"
)

// Auth error codes.
const (
	AuthInvalidCredentials = "invalid_credentials"
	AuthEmailNotVerified   = "email_not_verified"
	AuthEmailInUse         = "email_in_use"
	AuthWeakPassword       = "weak_password"
	AuthInvalidCode        = "invalid_code"
	AuthSessionExpired     = "session_expired"
	AuthConfig             = "config_error"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// NewInvalidRequestErrorWithParam creates an invalid request error with a parameter.
func NewInvalidRequestErrorWithParam(message, param string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
		Param:   param,
	}
}

// NewAuthenticationError creates an authentication error.
func NewAuthenticationError(message string) *Error {
	return &Error{
		Type:    ErrAuthentication,
		Message: message,
	}
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(message string) *Error {
	return &Error{
		Type:    ErrNotFound,
		Message: message,
	}
}

// NewRateLimitError creates a rate limit error.
func NewRateLimitError(message string, retryAfter int) *Error {
	return &Error{
		Type:       ErrRateLimit,
		Message:    message,
		RetryAfter: &retryAfter,
	}
}

// NewAPIError creates a generic API error.
func NewAPIError(message string) *Error {
	return &Error{
		Type:    ErrAPI,
		Message: message,
	}
}

// NewOverloadedError creates an overloaded error.
func NewOverloadedError(message string) *Error {
	return &Error{
		Type:    ErrOverloaded,
		Message: message,
	}
}

// NewMediaAccessError reports a capture device that could not be opened.
func NewMediaAccessError(device string, cause error) *Error {
	return &Error{
		Type:    ErrMediaAccess,
		Message: fmt.Sprintf("%s unavailable: %v", device, cause),
		Param:   device,
		cause:   cause,
	}
}

// NewTransportError reports a live stream failure during op (dial, send, recv).
func NewTransportError(op string, cause error) *Error {
	return &Error{
		Type:    ErrTransport,
		Message: fmt.Sprintf("live stream %s failed: %v", op, cause),
		Code:    op,
		cause:   cause,
	}
}

// NewGatewayError reports a failed or malformed AI backend response.
func NewGatewayError(op string, cause error) *Error {
	msg := op + " failed"
	if cause != nil {
		msg = fmt.Sprintf("%s failed: %v", op, cause)
	}
	return &Error{
		Type:    ErrGateway,
		Message: msg,
		Param:   op,
		cause:   cause,
	}
}

// NewAuthError creates an identity error with one of the Auth* codes.
func NewAuthError(code, message string) *Error {
	return &Error{
		Type:    ErrAuth,
		Message: message,
		Code:    code,
	}
}

// IsRetryable returns true if the error is retryable.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrRateLimit, ErrOverloaded, ErrAPI, ErrTransport:
		return true
	default:
		return false
	}
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	if ue, ok := e.ProviderError.(error); ok {
		return ue
	}
	return nil
}

// IsType reports whether err is, or wraps, a *Error of type t.
func IsType(err error, t ErrorType) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Type == t
}

// AuthCode returns the auth error code carried by err, or "".
func AuthCode(err error) string {
	var ce *Error
	if errors.As(err, &ce) && ce.Type == ErrAuth {
		return ce.Code
	}
	return ""
}
