// Package errors provides standardized error types for tally.
package errors

import (
	"errors"
	"fmt"
)

// Error codes for the batch and plan components.
const (
	CodeInvalidConfig         = "INVALID_CONFIG"
	CodeBatchFailed           = "BATCH_FAILED"
	CodePrepareFailed         = "PREPARE_FAILED"
	CodeQueryFailed           = "QUERY_FAILED"
	CodeUnsupportedCapability = "UNSUPPORTED_CAPABILITY"
	CodeWriterClosed          = "WRITER_CLOSED"
	CodeConnectionFailed      = "CONNECTION_FAILED"
	CodeStatementNotFound     = "STATEMENT_NOT_FOUND"
	CodeMarshalFailed         = "MARSHAL_FAILED"
	CodeInternal              = "INTERNAL_ERROR"
)

// Error represents a tally error with code, message, and optional details.
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements error comparison by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetail adds a single detail to the error.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Common errors.
var (
	ErrInvalidBatchSize          = &Error{Code: CodeInvalidConfig, Message: "batch size must be positive"}
	ErrWriterClosed              = &Error{Code: CodeWriterClosed, Message: "batch writer already closed"}
	ErrStatementNotFound         = &Error{Code: CodeStatementNotFound, Message: "prepared statement not found"}
	ErrServerPrepareNotSupported = &Error{Code: CodeUnsupportedCapability, Message: "channel does not expose server-side preparation control"}
	ErrConnectionFailed          = &Error{Code: CodeConnectionFailed, Message: "store connection failed"}
)

// New creates a new Error with the given code and message.
func New(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with a coded Error.
func Wrap(err error, code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// IsBatchFailed checks if an error is a batch flush failure.
func IsBatchFailed(err error) bool {
	return GetCode(err) == CodeBatchFailed
}

// IsInvalidConfig checks if an error is a configuration error.
func IsInvalidConfig(err error) bool {
	return GetCode(err) == CodeInvalidConfig
}

// IsUnsupportedCapability checks if an error reports a missing driver capability.
func IsUnsupportedCapability(err error) bool {
	return GetCode(err) == CodeUnsupportedCapability
}

// IsWriterClosed checks if an error reports use of a closed writer.
func IsWriterClosed(err error) bool {
	return GetCode(err) == CodeWriterClosed
}

// GetCode extracts the error code from an error.
func GetCode(err error) string {
	var tallyErr *Error
	if errors.As(err, &tallyErr) {
		return tallyErr.Code
	}
	return CodeInternal
}

// GetMessage extracts the error message from an error.
func GetMessage(err error) string {
	var tallyErr *Error
	if errors.As(err, &tallyErr) {
		return tallyErr.Message
	}
	return err.Error()
}
