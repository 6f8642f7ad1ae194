package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode is the machine readable code returned in error bodies
type ErrorCode string

const (
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"

	ErrCodeDatabaseQuery    ErrorCode = "DATABASE_QUERY"
	ErrCodeModelUnavailable ErrorCode = "MODEL_UNAVAILABLE"

	ErrCodeInsufficientTrainingData   ErrorCode = "INSUFFICIENT_TRAINING_DATA"
	ErrCodeConcurrentTrainingConflict ErrorCode = "CONCURRENT_TRAINING_CONFLICT"
	ErrCodeTrainingFailure            ErrorCode = "TRAINING_FAILURE"
	ErrCodeTrainingCancelled          ErrorCode = "TRAINING_CANCELLED"
	ErrCodeTrainingInterrupted        ErrorCode = "TRAINING_INTERRUPTED"

	ErrCodeInternal ErrorCode = "INTERNAL"
)

// Codes missing here map to 500
var httpStatus = map[ErrorCode]int{
	ErrCodeNotFound:                   http.StatusNotFound,
	ErrCodeConflict:                   http.StatusConflict,
	ErrCodeConcurrentTrainingConflict: http.StatusConflict,
	ErrCodeTrainingCancelled:          http.StatusConflict,
	ErrCodeInvalidInput:               http.StatusBadRequest,
	ErrCodeMissingField:               http.StatusBadRequest,
	ErrCodeUnauthorized:               http.StatusUnauthorized,
	ErrCodeForbidden:                  http.StatusForbidden,
	ErrCodeInsufficientTrainingData:   http.StatusUnprocessableEntity,
	ErrCodeModelUnavailable:           http.StatusServiceUnavailable,
}

// AppError is an error that knows how it should be rendered over HTTP
type AppError struct {
	Code     ErrorCode              `json:"code"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`
	Cause    error                  `json:"-"`
	HTTPCode int                    `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetail attaches a key to the details object of the response body
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = map[string]interface{}{}
	}
	e.Details[key] = value
	return e
}

func (e *AppError) GetHTTPCode() int {
	if e.HTTPCode != 0 {
		return e.HTTPCode
	}
	return statusFor(e.Code)
}

func statusFor(code ErrorCode) int {
	if status, ok := httpStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPCode: statusFor(code)}
}

// Wrap keeps cause reachable through errors.Is and errors.As
func Wrap(cause error, code ErrorCode, message string) *AppError {
	err := New(code, message)
	err.Cause = cause
	return err
}

func NotFound(resource string, id interface{}) *AppError {
	return New(ErrCodeNotFound, resource+" not found").
		WithDetail("resource", resource).
		WithDetail("id", id)
}

func InvalidInput(format string, args ...interface{}) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf(format, args...))
}

func DatabaseError(operation string, cause error) *AppError {
	return Wrap(cause, ErrCodeDatabaseQuery, "database "+operation+" failed").
		WithDetail("operation", operation)
}

// ModelUnavailable reports a statistical model that could not be loaded
func ModelUnavailable(cause error) *AppError {
	return Wrap(cause, ErrCodeModelUnavailable, "statistical model unavailable")
}

// InsufficientTrainingData reports fewer eligible examples than min_samples
func InsufficientTrainingData(have, want int) *AppError {
	msg := fmt.Sprintf("insufficient training data: %d examples, need at least %d", have, want)
	return New(ErrCodeInsufficientTrainingData, msg).
		WithDetail("available", have).
		WithDetail("min_samples", want)
}

// ConcurrentTrainingConflict reports a lineage whose training lock is held
func ConcurrentTrainingConflict(lineage string) *AppError {
	msg := fmt.Sprintf("a training run for lineage %q is already running", lineage)
	return New(ErrCodeConcurrentTrainingConflict, msg).WithDetail("lineage", lineage)
}

// TrainingFailure wraps an error from one stage of a training cycle
func TrainingFailure(stage string, cause error) *AppError {
	return Wrap(cause, ErrCodeTrainingFailure, "training failed during "+stage).
		WithDetail("stage", stage)
}

// TrainingInterrupted reports a run whose process stopped before it finished
func TrainingInterrupted() *AppError {
	return New(ErrCodeTrainingInterrupted, "training run interrupted before completion")
}

// As finds the first AppError in the chain
func As(err error) (*AppError, bool) {
	var appErr *AppError
	ok := stderrors.As(err, &appErr)
	return appErr, ok
}

func Is(err error, code ErrorCode) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// GetCode returns INTERNAL for errors that carry no code
func GetCode(err error) ErrorCode {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

func GetHTTPCode(err error) int {
	if appErr, ok := As(err); ok {
		return appErr.GetHTTPCode()
	}
	return http.StatusInternalServerError
}
