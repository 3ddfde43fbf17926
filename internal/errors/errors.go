// Package errors defines stable error codes for all ccd failure modes.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// FlagsUnavailable indicates no usable compile flags exist for a file
	FlagsUnavailable ErrorCode = "FLAGS_UNAVAILABLE"
	// ParseFailed indicates the frontend returned no usable AST handle at all
	ParseFailed ErrorCode = "PARSE_FAILED"
	// InvalidPosition indicates a cursor outside file bounds
	InvalidPosition ErrorCode = "INVALID_POSITION"
	// Timeout indicates a request exceeded its configured deadline
	Timeout ErrorCode = "TIMEOUT"
	// Cancelled indicates a request was superseded by a newer one
	Cancelled ErrorCode = "CANCELLED"
	// LibraryFault indicates an unexpected failure from the compiler frontend
	LibraryFault ErrorCode = "LIBRARY_FAULT"
	// QueueFull indicates the per-file request queue rejected a request
	QueueFull ErrorCode = "QUEUE_FULL"
	// InternalError indicates an unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// CcdError represents a ccd error with a stable code and message
type CcdError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error       // Underlying error (not exported to JSON)
}

// New creates a new CcdError
func New(code ErrorCode, message string, cause error) *CcdError {
	return &CcdError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Error implements the error interface
func (e *CcdError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *CcdError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *CcdError) WithDetails(details interface{}) *CcdError {
	e.Details = details
	return e
}

// CodeOf returns the error code carried by err, or InternalError if err is
// not a CcdError. A nil err yields the empty code.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var ce *CcdError
	if stderrors.As(err, &ce) {
		return ce.Code
	}
	return InternalError
}

// Is reports whether err carries the given code
func Is(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
