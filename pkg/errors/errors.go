package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application-specific error codes
type ErrorCode string

const (
	// Handshake / auth errors
	ErrCodeAuthRequired ErrorCode = "AUTH_REQUIRED"
	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"

	// Frame-level errors
	ErrCodeMalformedFrame ErrorCode = "MALFORMED_FRAME"

	// Call lifecycle errors
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrCodeNotAuthorized     ErrorCode = "NOT_AUTHORIZED"

	// Conversation errors
	ErrCodeNotAMember ErrorCode = "NOT_A_MEMBER"

	// Delivery errors
	ErrCodeIdentityOffline ErrorCode = "IDENTITY_OFFLINE"

	// Lookup errors
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeCallNotFound ErrorCode = "CALL_NOT_FOUND"
	ErrCodeUserNotFound ErrorCode = "USER_NOT_FOUND"

	// Validation errors
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"

	// Internal errors
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
)

// AppError represents a structured application error with code, message, and HTTP status
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Err        error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewWithStatus creates a new AppError with a specific HTTP status code
func NewWithStatus(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WrapWithStatus wraps an existing error with an AppError and specific status code
func WrapWithStatus(code ErrorCode, message string, statusCode int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// AuthRequiredError signals a missing or unresolvable credential at handshake
func AuthRequiredError(message string) *AppError {
	return NewWithStatus(ErrCodeAuthRequired, message, http.StatusUnauthorized)
}

// InvalidTokenError signals a credential that failed validation
func InvalidTokenError(message string) *AppError {
	return NewWithStatus(ErrCodeInvalidToken, message, http.StatusUnauthorized)
}

// MalformedFrameError signals an unparseable inbound frame
func MalformedFrameError() *AppError {
	return NewWithStatus(ErrCodeMalformedFrame, "Invalid JSON", http.StatusBadRequest)
}

// InvalidTransitionError signals a call state rule violation; the call is left unchanged
func InvalidTransitionError(current string) *AppError {
	return NewWithStatus(ErrCodeInvalidTransition,
		fmt.Sprintf("call cannot change state. Current status: %s", current),
		http.StatusBadRequest)
}

// NotAuthorizedError signals an actor that is not a party to the call or group
func NotAuthorizedError(message string) *AppError {
	return NewWithStatus(ErrCodeNotAuthorized, message, http.StatusForbidden)
}

// NotAMemberError signals a group message from a non-member
func NotAMemberError() *AppError {
	return NewWithStatus(ErrCodeNotAMember, "You are not a member of this group", http.StatusForbidden)
}

// IdentityOfflineError signals that the target of a direct send has no live connection.
// Non-fatal: callers decide whether to queue, drop, or notify.
func IdentityOfflineError(identity string) *AppError {
	return NewWithStatus(ErrCodeIdentityOffline,
		fmt.Sprintf("user %s has no live connection", identity),
		http.StatusAccepted)
}

// NotFoundError signals a missing call, group, or user
func NotFoundError(resource string) *AppError {
	return NewWithStatus(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// CallNotFoundError signals a missing call record
func CallNotFoundError() *AppError {
	return NewWithStatus(ErrCodeCallNotFound, "Call not found", http.StatusNotFound)
}

// UserNotFoundError signals a missing user record
func UserNotFoundError() *AppError {
	return NewWithStatus(ErrCodeUserNotFound, "User not found", http.StatusNotFound)
}

// ValidationError signals malformed request input
func ValidationError(message string) *AppError {
	return NewWithStatus(ErrCodeValidation, message, http.StatusBadRequest)
}

// InternalError signals an unexpected failure
func InternalError(message string) *AppError {
	return NewWithStatus(ErrCodeInternal, message, http.StatusInternalServerError)
}

// DatabaseError wraps a storage failure
func DatabaseError(err error) *AppError {
	return WrapWithStatus(ErrCodeDatabase, "Database error", http.StatusInternalServerError, err)
}

// Is reports whether err carries the given error code
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetAppError extracts AppError from an error, wrapping non-AppErrors as InternalError
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return InternalError(err.Error())
}
