package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrDuplicate is returned by repositories when a unique index rejects a write.
var ErrDuplicate = errors.New("duplicate key")

// FieldError describes one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// AppError is a structured application error with HTTP status code.
type AppError struct {
	Code    int          `json:"code"`
	Message string       `json:"error"`
	Details []FieldError `json:"details,omitempty"`
	Err     error        `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error constructors.

func ErrNotFound(msg string) *AppError {
	return &AppError{Code: http.StatusNotFound, Message: msg}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: http.StatusUnauthorized, Message: msg}
}

func ErrForbidden(msg string) *AppError {
	return &AppError{Code: http.StatusForbidden, Message: msg}
}

func ErrBadRequest(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

// ErrConflict is reported as 400, matching how duplicate emails and
// duplicate gateway providers have always been surfaced to clients.
func ErrConflict(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg, Err: ErrDuplicate}
}

func ErrValidation(details []FieldError) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: "validation failed", Details: details}
}

func ErrTooManyRequests(msg string) *AppError {
	return &AppError{Code: http.StatusTooManyRequests, Message: msg}
}

// ErrProvider wraps a payment provider failure. The provider's own message is
// surfaced when there is one.
func ErrProvider(provider string, err error) *AppError {
	msg := provider + " request failed"
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return &AppError{Code: http.StatusInternalServerError, Message: msg, Err: err}
}

func ErrInternal(msg string, err error) *AppError {
	return &AppError{Code: http.StatusInternalServerError, Message: msg, Err: err}
}

// AsAppError attempts to extract an AppError from an error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
