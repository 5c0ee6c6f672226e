package types

import "fmt"

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Policy rejection codes. These are expected outcomes, returned as Decision
// values and recorded in the audit trail, never raised as Go errors.
const (
	ErrUnauthorizedWrite    ErrorCode = "UNAUTHORIZED_WRITE"
	ErrFieldNotWritable     ErrorCode = "FIELD_NOT_WRITABLE"
	ErrInvalidTransition    ErrorCode = "INVALID_TRANSITION"
	ErrMissingRequiredField ErrorCode = "MISSING_REQUIRED_FIELD"
	ErrOutstandingRejection ErrorCode = "OUTSTANDING_REJECTION"
	ErrRollbackNotAllowed   ErrorCode = "ROLLBACK_NOT_ALLOWED"
	ErrTerminalPhase        ErrorCode = "TERMINAL_PHASE"
	ErrUnknownPhase         ErrorCode = "UNKNOWN_PHASE"
	ErrSessionArchived      ErrorCode = "SESSION_ARCHIVED"
)

// Infrastructure fault codes. These propagate as Go errors to the caller,
// who decides retry policy.
const (
	ErrStaleRevision    ErrorCode = "STALE_REVISION"
	ErrSessionNotFound  ErrorCode = "SESSION_NOT_FOUND"
	ErrSessionExists    ErrorCode = "SESSION_EXISTS"
	ErrAuditUnavailable ErrorCode = "AUDIT_UNAVAILABLE"
	ErrStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	ErrInternalError    ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates a new Error with a formatted message.
func NewErrorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable. Stale-revision conflicts are
// always retryable: the caller reloads the latest state and reproposes.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// NewStaleRevisionError constructs the retryable concurrent-write conflict.
func NewStaleRevisionError(sessionID string, expected, current uint64) *Error {
	return NewErrorf(ErrStaleRevision,
		"session %s: proposal computed against revision %d, current is %d",
		sessionID, expected, current,
	).WithRetryable(true)
}
