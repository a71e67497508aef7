// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrSessionExpired     = errors.New("session expired")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotVerified   = errors.New("email address not verified")
	ErrAccountInactive    = errors.New("account is not active")
	ErrPendingApproval    = errors.New("account pending approval")
	ErrInvalid2FA         = errors.New("invalid 2FA code")
	ErrNo2FAPending       = errors.New("no 2FA challenge pending")
	ErrNotAdmin           = errors.New("not an admin user")
	ErrNoPrimary          = errors.New("no primary credential stored")
	ErrNoAdminToken       = errors.New("no admin token saved")
	ErrEmailNotFound      = errors.New("email address not found")
	ErrInvalidResetToken  = errors.New("invalid or expired reset link")
	ErrUnexpectedResponse = errors.New("unexpected response from server")
	ErrPriceUnavailable   = errors.New("asset price unavailable")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrUploadTooLarge     = errors.New("upload exceeds size limit")
	ErrUploadType         = errors.New("unsupported upload type")
	ErrChannelClosed      = errors.New("channel closed")
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrDatabaseError      = errors.New("database error")
	ErrCredentialAccess   = errors.New("credential access denied")
)

// HTTPError is a non-2xx response from the platform API.
type HTTPError struct {
	Method  string
	Path    string
	Status  int
	Message string
	Flags   AuthFlags
}

// AuthFlags carries the backend's login refusal markers.
type AuthFlags struct {
	RequiresVerification bool `json:"requiresVerification"`
	AccountInactive      bool `json:"accountInactive"`
	PendingApproval      bool `json:"pendingApproval"`
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error [%d] %s %s: %s", e.Status, e.Method, e.Path, e.Message)
	}
	return fmt.Sprintf("api error [%d] %s %s", e.Status, e.Method, e.Path)
}

// NewHTTPError creates a new HTTPError.
func NewHTTPError(method, path string, status int, message string) *HTTPError {
	return &HTTPError{
		Method:  method,
		Path:    path,
		Status:  status,
		Message: message,
	}
}

// Shape names the JSON top-level kind a caller expects.
type Shape string

const (
	ShapeAny    Shape = "any"
	ShapeObject Shape = "object"
	ShapeArray  Shape = "array"
)

// MalformedResponseError reports a body whose shape did not match.
type MalformedResponseError struct {
	Path     string
	Expected Shape
	Got      string
	Err      error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed response from %s: expected %s, got %s: %v", e.Path, e.Expected, e.Got, e.Err)
	}
	return fmt.Sprintf("malformed response from %s: expected %s, got %s", e.Path, e.Expected, e.Got)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// NewMalformedResponseError creates a new MalformedResponseError.
func NewMalformedResponseError(path string, expected Shape, got string, err error) *MalformedResponseError {
	return &MalformedResponseError{
		Path:     path,
		Expected: expected,
		Got:      got,
		Err:      err,
	}
}

// StreamError represents a failure on a push channel.
type StreamError struct {
	Stream string
	Op     string
	Err    error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream error [%s] %s: %v", e.Stream, e.Op, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// NewStreamError creates a new StreamError.
func NewStreamError(stream, op string, err error) *StreamError {
	return &StreamError{
		Stream: stream,
		Op:     op,
		Err:    err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}
