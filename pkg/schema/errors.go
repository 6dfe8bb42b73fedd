package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeExecution          = "EXECUTION_ERROR"
	ErrCodeStore              = "STORE_ERROR"
	ErrCodeUnsupportedVersion = "UNSUPPORTED_VERSION"
)

// Error is the structured error type shared by the dashboard engine, its
// HTTP API and its MCP tools.
type Error struct {
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
	WidgetID string         `json:"widget_id,omitempty"`
	Cause    error          `json:"-"`
}

func (e *Error) Error() string {
	if e.WidgetID != "" {
		return fmt.Sprintf("[%s] widget %s: %s", e.Code, e.WidgetID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates a new Error with a formatted message.
func NewErrorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithWidget attaches a widget node ID to the error.
func (e *Error) WithWidget(id string) *Error {
	e.WidgetID = id
	return e
}

// WithCause attaches an underlying cause.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// IsCode reports whether err wraps an *Error carrying the given code.
func IsCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
