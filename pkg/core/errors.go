package core

import (
	"errors"
	"fmt"
)

// Error represents a structured orchestrator or API error.
type Error struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Param     string    `json:"param,omitempty"`
	Code      string    `json:"code,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
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
	ErrRateLimit      ErrorType = "rate_limit_error"
	ErrNotFound       ErrorType = "not_found_error"
	// ErrProtocol marks malformed or out-of-order provider stream data.
	// Protocol violations are fatal to the current run.
	ErrProtocol ErrorType = "protocol_error"
	// ErrTool marks a tool dispatch or execution failure.
	ErrTool ErrorType = "tool_error"
	// ErrProvider marks an upstream provider failure.
	ErrProvider ErrorType = "provider_error"
	ErrAPI      ErrorType = "api_error"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message}
}

// NewProtocolError creates a protocol-violation error.
func NewProtocolError(format string, args ...any) *Error {
	return &Error{Type: ErrProtocol, Message: fmt.Sprintf(format, args...)}
}

// NewToolError creates a tool dispatch/execution error.
func NewToolError(format string, args ...any) *Error {
	return &Error{Type: ErrTool, Message: fmt.Sprintf(format, args...)}
}

// NewProviderError creates an upstream provider error.
func NewProviderError(provider string, underlying error) *Error {
	return &Error{Type: ErrProvider, Message: fmt.Sprintf("%s: %v", provider, underlying)}
}

// NewAPIError creates a generic API error.
func NewAPIError(message string) *Error {
	return &Error{Type: ErrAPI, Message: message}
}

// AsError extracts a *core.Error from err, wrapping unknown errors as
// api_error so transports always have a structured payload to send.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) && ce != nil {
		return ce
	}
	return &Error{Type: ErrAPI, Message: err.Error()}
}
