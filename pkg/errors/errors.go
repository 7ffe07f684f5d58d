// Package errors defines the error kinds shared by every service and maps
// them to HTTP status codes.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrExternalService  = errors.New("external service error")
	ErrEmptyContent     = errors.New("empty content")
	ErrValidation       = errors.New("validation failed")
	ErrTimeout          = errors.New("operation timed out")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrStreamIncomplete = errors.New("stream ended before completion")
	ErrInternal         = errors.New("internal error")
)

// AppError pairs an error kind with a human readable message, the HTTP
// status it maps to and, optionally, the underlying cause.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Err.Error(), e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Wrap attaches cause to a new AppError of the given kind.
func Wrap(sentinel error, cause error, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusFor(sentinel),
		Cause:      cause,
	}
}

// Validation is shorthand for a 400 validation error.
func Validation(format string, args ...any) *AppError {
	return Newf(ErrValidation, http.StatusBadRequest, format, args...)
}

// NotFound is shorthand for a 404 not-found error.
func NotFound(format string, args ...any) *AppError {
	return Newf(ErrNotFound, http.StatusNotFound, format, args...)
}

// External classifies a failure from a collaborator backend. Deadline
// expiry becomes ErrTimeout; everything else becomes ErrExternalService.
// Errors that already carry a kind are returned unchanged.
func External(service string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(ErrTimeout, err, service)
	}
	return Wrap(ErrExternalService, err, service)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.StatusCode != 0 {
		return appErr.StatusCode
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	for _, kind := range []error{
		ErrNotFound, ErrValidation, ErrRateLimited, ErrTimeout,
		ErrExternalService, ErrStreamIncomplete,
	} {
		if errors.Is(err, kind) {
			return statusFor(kind)
		}
	}
	return http.StatusInternalServerError
}

func statusFor(kind error) int {
	switch kind {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrValidation:
		return http.StatusBadRequest
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrTimeout:
		return http.StatusGatewayTimeout
	case ErrExternalService, ErrStreamIncomplete:
		return http.StatusBadGateway
	case ErrEmptyContent:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
