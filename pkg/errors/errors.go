package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrSelfTarget   = errors.New("cannot target yourself")
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrInternal     = errors.New("internal server error")
)

// AppError carries a client-safe message next to its kind and, optionally,
// the underlying cause.
type AppError struct {
	Kind    error
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.Error()
}

func (e *AppError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func Validation(message string) error {
	return &AppError{Kind: ErrValidation, Message: message}
}

func Validationf(format string, args ...interface{}) error {
	return &AppError{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

// SelfTarget is the validation error returned when a user addresses themself.
func SelfTarget(message string) error {
	return &AppError{Kind: ErrValidation, Message: message, Err: ErrSelfTarget}
}

func NotFound(message string) error {
	return &AppError{Kind: ErrNotFound, Message: message}
}

func Forbidden(message string) error {
	return &AppError{Kind: ErrForbidden, Message: message}
}

func Conflict(message string, err error) error {
	return &AppError{Kind: ErrConflict, Message: message, Err: err}
}

func RateLimited(message string) error {
	return &AppError{Kind: ErrRateLimited, Message: message}
}

// Internal wraps an infrastructure failure. The message is never shown to clients.
func Internal(message string, err error) error {
	return &AppError{Kind: ErrInternal, Message: message, Err: err}
}

type APIError struct {
	Message string `json:"error"`
	Code    int    `json:"code"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewAPIError(message string, code int) *APIError {
	return &APIError{
		Message: message,
		Code:    code,
	}
}

func HTTPStatusFromError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is what a client may see for err.
func PublicMessage(err error) string {
	if HTTPStatusFromError(err) == http.StatusInternalServerError {
		return ErrInternal.Error()
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return err.Error()
}
