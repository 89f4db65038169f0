package utils

import (
	"errors"
	"fmt"
)

// Kind classifies an application error for API responses.
type Kind string

const (
	KindCredential Kind = "credential"
	KindConnection Kind = "connection"
	KindDecode     Kind = "decode"
	KindNotFound   Kind = "not_found"
	KindAuth       Kind = "auth"
	KindInternal   Kind = "internal"
)

// AppError is an application error carrying an HTTP status code, a
// classification and the underlying cause.
type AppError struct {
	Code    int    // HTTP status code
	Kind    Kind   // Error classification
	Message string // User-friendly message
	Err     error  // Underlying error
}

// NewAppError creates a new AppError
func NewAppError(code int, kind Kind, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Constructors for the error taxonomy

// CredentialError reports rejected registration or login credentials.
func CredentialError(message string, err error) *AppError {
	return NewAppError(400, KindCredential, message, err)
}

// ConnectionError reports a mail-store transport or authentication fault.
func ConnectionError(message string, err error) *AppError {
	return NewAppError(502, KindConnection, message, err)
}

// DecodeError reports an unparseable mail message.
func DecodeError(message string, err error) *AppError {
	return NewAppError(500, KindDecode, message, err)
}

// NotFoundError reports a missing message or attachment.
func NotFoundError(message string, err error) *AppError {
	return NewAppError(404, KindNotFound, message, err)
}

// AuthError reports an invalid or expired token, or a failed login.
func AuthError(message string, err error) *AppError {
	return NewAppError(401, KindAuth, message, err)
}

// InternalError reports an unexpected server-side fault.
func InternalError(message string, err error) *AppError {
	return NewAppError(500, KindInternal, message, err)
}

// KindOf returns the classification of err, or KindInternal for errors that
// are not AppErrors.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, kind Kind) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Kind == kind
}
