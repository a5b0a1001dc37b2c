package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	CodeNotFound         = "NOT_FOUND"
	CodeBadRequest       = "BAD_REQUEST"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeConflict         = "CONFLICT"
	CodeAlreadyExists    = "ALREADY_EXISTS"
	CodeValidation       = "VALIDATION_ERROR"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeUnavailable      = "UNAVAILABLE"
	CodeSchema           = "SCHEMA_ERROR"
	CodeTimeout          = "TIMEOUT"
	CodeTooManyRequests  = "TOO_MANY_REQUESTS"
	CodeInternal         = "INTERNAL_ERROR"
)

// Kind groups error codes by how the synchronization layer reacts to them.
type Kind string

const (
	KindTransient  Kind = "transient"
	KindPermission Kind = "permission"
	KindSchema     Kind = "schema"
	KindValidation Kind = "validation"
	KindOther      Kind = "other"
)

type AppError struct {
	Code      string
	Message   string
	Status    int
	Err       error
	RetryIn   time.Duration
	Retryable bool
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code string, message string, status int, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
		Err:     err,
	}
}

func BadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    CodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     err,
	}
}

func Validation(message string, err error) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     err,
	}
}

func Unauthorized(message string, err error) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     err,
	}
}

func Forbidden(message string, err error) *AppError {
	return &AppError{
		Code:    CodeForbidden,
		Message: message,
		Status:  http.StatusForbidden,
		Err:     err,
	}
}

func PermissionDenied(message string, err error) *AppError {
	return &AppError{
		Code:    CodePermissionDenied,
		Message: message,
		Status:  http.StatusForbidden,
		Err:     err,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
		Status:  http.StatusConflict,
	}
}

func AlreadyExists(resource string, err error) *AppError {
	return &AppError{
		Code:    CodeAlreadyExists,
		Message: fmt.Sprintf("%s already exists", resource),
		Status:  http.StatusConflict,
		Err:     err,
	}
}

func Unavailable(message string, err error) *AppError {
	return &AppError{
		Code:      CodeUnavailable,
		Message:   message,
		Status:    http.StatusServiceUnavailable,
		Err:       err,
		Retryable: true,
	}
}

func Schema(message string, err error) *AppError {
	return &AppError{
		Code:    CodeSchema,
		Message: message,
		Status:  http.StatusUnprocessableEntity,
		Err:     err,
	}
}

func Timeout(message string, err error) *AppError {
	return &AppError{
		Code:      CodeTimeout,
		Message:   message,
		Status:    http.StatusGatewayTimeout,
		Err:       err,
		Retryable: true,
	}
}

func Internal(message string, err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func TooManyRequests(message string, waitTime time.Duration) *AppError {
	return &AppError{
		Code:      CodeTooManyRequests,
		Message:   message,
		Status:    http.StatusTooManyRequests,
		RetryIn:   waitTime,
		Retryable: true,
	}
}

func Is(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Code returns the AppError code carried by err, or CodeInternal.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

func KindOf(err error) Kind {
	if err == nil {
		return KindOther
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	switch Code(err) {
	case CodeUnavailable, CodeTimeout, CodeTooManyRequests:
		return KindTransient
	case CodePermissionDenied, CodeUnauthorized, CodeForbidden:
		return KindPermission
	case CodeSchema:
		return KindSchema
	case CodeValidation, CodeBadRequest:
		return KindValidation
	}
	return KindOther
}

func Retryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func DeadlineExceeded(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// FromContext maps a context failure to a retryable timeout.
func FromContext(ctx context.Context, operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return Timeout(fmt.Sprintf("%s timed out", operation), err)
	}
	return err
}
