// Package errors provides error codes shared by the offline queue, the replay
// transport and the local agent API.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code surfaced to the UI layer.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Replay errors
	ErrNetwork ErrorCode = "NETWORK_ERROR"
	ErrAuth    ErrorCode = "AUTH_ERROR"

	// Queue errors
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrStorage           ErrorCode = "STORAGE_ERROR"
	ErrCryptoFailed      ErrorCode = "CRYPTO_FAILED"

	// Sync errors
	ErrSyncFailed ErrorCode = "SYNC_FAILED"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error, or any error it wraps, carries the given code.
func Is(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// CodeOf returns the code of the outermost AppError in the chain, or "" when
// the chain holds none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsRetryable reports whether replaying the same request later may succeed.
// Only network-class failures qualify.
func IsRetryable(err error) bool {
	return Is(err, ErrNetwork)
}

// ReplayCode classifies a replay failure. Errors that already carry a code
// keep it; anything else is a transport failure and counts as NETWORK_ERROR.
func ReplayCode(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if code := CodeOf(err); code != "" {
		return code
	}
	return ErrNetwork
}

// FromHTTPStatus maps a backend response status onto the replay taxonomy.
// Returns nil for 1xx-3xx statuses.
//
//	408, 429, 5xx -> NETWORK_ERROR (transient)
//	401, 403      -> AUTH_ERROR (terminal)
//	other 4xx     -> VALIDATION_ERROR (terminal)
func FromHTTPStatus(status int, message string) *AppError {
	switch {
	case status < 400:
		return nil
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return New(ErrNetwork, fmt.Sprintf("backend returned %d: %s", status, message))
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return New(ErrAuth, fmt.Sprintf("backend rejected credentials (%d): %s", status, message))
	default:
		return New(ErrValidation, fmt.Sprintf("backend rejected request (%d): %s", status, message))
	}
}

// HTTPStatus returns the status the local agent API answers with for err.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrInvalid, ErrValidation:
		return http.StatusBadRequest
	case ErrInvalidTransition:
		return http.StatusConflict
	case ErrAuth:
		return http.StatusUnauthorized
	case ErrNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
