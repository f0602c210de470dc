package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// DatabaseErrorMessage describes relational database failures.
	DatabaseErrorMessage = "database operation failed"
	// LLMErrorMessage describes failures calling the language model.
	LLMErrorMessage = "language model request failed"
	// MalformedOutputMessage describes model output that does not satisfy its schema.
	MalformedOutputMessage = "language model returned malformed output"
	// VectorErrorMessage describes similarity index failures.
	VectorErrorMessage = "similarity index unavailable"
	// BadRequestMessage describes invalid client input.
	BadRequestMessage = "invalid request"
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// BadRequest reports invalid client input.
func BadRequest(err error) *AppError {
	return New(err, http.StatusBadRequest, BadRequestMessage)
}

// WrapDB wraps a database error that must abort the current request.
func WrapDB(err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusBadGateway, DatabaseErrorMessage)
}

// WrapLLM wraps a transport-level failure talking to the language model.
func WrapLLM(err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusBadGateway, LLMErrorMessage)
}

// Malformed reports model output that could not be parsed or validated.
// It is a contract violation, so it surfaces as an internal error.
func Malformed(err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusInternalServerError, MalformedOutputMessage)
}

// WrapVector wraps a similarity index failure.
func WrapVector(err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusBadGateway, VectorErrorMessage)
}

// StatusOf returns the HTTP status carried by err, or 500 when err is not an AppError.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// MessageOf returns the safe message carried by err.
func MessageOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return SystemErrorMessage
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}
