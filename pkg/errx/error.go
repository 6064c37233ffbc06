package errx

import (
	"errors"
	"fmt"
)

// Error is a rich error carrying a stable code, a category, and a suggested
// HTTP status. Services return *Error values; the HTTP layer renders them.
type Error struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Type       Type           `json:"type"`
	HTTPStatus int            `json:"http_status"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail attaches a key/value to the error and returns it for chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// IsType reports whether err is an *Error of the given category.
func IsType(err error, t Type) bool {
	var ex *Error
	if errors.As(err, &ex) {
		return ex.Type == t
	}
	return false
}

// New creates an ad-hoc error outside any registry.
func New(message string, errType Type) *Error {
	return &Error{
		Code:       string(errType),
		Message:    message,
		Type:       errType,
		HTTPStatus: typeToHTTPStatus(errType),
	}
}

// Wrap attaches context to an underlying error. When err is already an
// *Error its code and status are preserved.
func Wrap(err error, message string, errType Type) *Error {
	if err == nil {
		return nil
	}

	var existing *Error
	if errors.As(err, &existing) {
		return &Error{
			Code:       existing.Code,
			Message:    message,
			Type:       existing.Type,
			HTTPStatus: existing.HTTPStatus,
			Details:    existing.Details,
			Err:        err,
		}
	}

	return &Error{
		Code:       string(errType),
		Message:    message,
		Type:       errType,
		HTTPStatus: typeToHTTPStatus(errType),
		Err:        err,
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, errType Type, format string, args ...any) *Error {
	return Wrap(err, fmt.Sprintf(format, args...), errType)
}

func typeToHTTPStatus(t Type) int {
	switch t {
	case TypeValidation:
		return 400
	case TypeAuthentication, TypeExpired:
		return 401
	case TypeAuthorization:
		return 403
	case TypeNotFound:
		return 404
	case TypeConflict:
		return 409
	case TypeExternal:
		return 502
	default:
		return 500
	}
}

// Convenience constructors for the common categories.

func Internal(message string) *Error       { return New(message, TypeInternal) }
func Validation(message string) *Error     { return New(message, TypeValidation) }
func Authentication(message string) *Error { return New(message, TypeAuthentication) }
func Unauthorized(message string) *Error   { return New(message, TypeAuthorization) }
func Expired(message string) *Error        { return New(message, TypeExpired) }
func NotFound(message string) *Error       { return New(message, TypeNotFound) }
func Conflict(message string) *Error       { return New(message, TypeConflict) }
func External(message string) *Error       { return New(message, TypeExternal) }
