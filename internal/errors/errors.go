package errors

import (
	"errors"
	"fmt"
)

// Sync engine error taxonomy
var (
	// ErrAuthExpired indicates the access token was rejected by the server
	ErrAuthExpired = errors.New("access token rejected")

	// ErrAuthExhausted indicates refresh failed or no refresh token exists
	ErrAuthExhausted = errors.New("re-authentication required")

	// ErrRemoteUnavailable indicates a network, timeout or protocol failure
	ErrRemoteUnavailable = errors.New("remote server unavailable")

	// ErrServerRejected indicates the server refused a mutation
	ErrServerRejected = errors.New("server rejected request")

	// ErrCacheIntegrity indicates a local storage failure
	ErrCacheIntegrity = errors.New("cache integrity error")

	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates invalid input data
	ErrInvalidInput = errors.New("invalid input")
)

// Error codes for request/response errors
const (
	CodeAuthExhausted     = "AUTH_EXHAUSTED"
	CodeRemoteUnavailable = "REMOTE_UNAVAILABLE"
	CodeServerRejected    = "SERVER_REJECTED"
	CodeCacheIntegrity    = "CACHE_INTEGRITY"
	CodeNotFound          = "NOT_FOUND"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeInternalError     = "INTERNAL_ERROR"
)

// AppError represents an application error with context
type AppError struct {
	Err     error
	Message string
	Code    string
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError
func NewAppError(err error, message string, code string) *AppError {
	return &AppError{
		Err:     err,
		Message: message,
		Code:    code,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Mark tags err with one of the taxonomy sentinels while keeping the cause
// reachable through errors.Is/As.
func Mark(kind error, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// IsAuthExpired checks if the error is a rejected access token
func IsAuthExpired(err error) bool {
	return errors.Is(err, ErrAuthExpired)
}

// IsAuthExhausted checks if the error requires re-authentication
func IsAuthExhausted(err error) bool {
	return errors.Is(err, ErrAuthExhausted)
}

// IsRemoteUnavailable checks if the error is a recoverable remote failure
func IsRemoteUnavailable(err error) bool {
	return errors.Is(err, ErrRemoteUnavailable)
}

// IsServerRejected checks if the server refused the request
func IsServerRejected(err error) bool {
	return errors.Is(err, ErrServerRejected)
}

// IsCacheIntegrity checks if the error is a storage failure
func IsCacheIntegrity(err error) bool {
	return errors.Is(err, ErrCacheIntegrity)
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidInput checks if the error is an invalid input error
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// GetErrorCode returns the appropriate error code for an error
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code != "" {
		return appErr.Code
	}

	switch {
	case IsAuthExhausted(err):
		return CodeAuthExhausted
	case IsRemoteUnavailable(err):
		return CodeRemoteUnavailable
	case IsServerRejected(err):
		return CodeServerRejected
	case IsCacheIntegrity(err):
		return CodeCacheIntegrity
	case IsNotFound(err):
		return CodeNotFound
	case IsInvalidInput(err):
		return CodeInvalidInput
	default:
		return CodeInternalError
	}
}
