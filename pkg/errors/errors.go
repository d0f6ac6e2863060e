// Package errors provides structured error types for crateindex.
//
// Every failure that crosses a package boundary carries a machine-readable
// [Code] so that the CLI and the HTTP API can decide how to present it
// without string matching:
//   - NOT_FOUND family: a package key, file or declaration identifier is unknown
//   - AMBIGUOUS_REFERENCE: a bare crate name matches several stored versions
//   - NETWORK_ERROR / ARCHIVE_FORMAT: registry and download failures
//   - PARSE_FAILURE: a single source file could not be parsed
//   - STORAGE_FAILURE: a catalog transaction failed and was rolled back
//   - INVALID_PATH / INVALID_INPUT: rejected caller input
//
// # Usage
//
//	err := errors.New(errors.ErrCodeAmbiguousReference, "%s matches %d versions", name, n)
//	if errors.Is(err, errors.ErrCodeAmbiguousReference) {
//	    // ask for an explicit version
//	}
//
//	err := errors.Wrap(errors.ErrCodeStorage, txErr, "replace %s", key)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput   Code = "INVALID_INPUT"
	ErrCodeInvalidPackage Code = "INVALID_PACKAGE"
	ErrCodeInvalidPath    Code = "INVALID_PATH"

	// Resource not found errors
	ErrCodeNotFound        Code = "NOT_FOUND"
	ErrCodePackageNotFound Code = "PACKAGE_NOT_FOUND"
	ErrCodeFileNotFound    Code = "FILE_NOT_FOUND"
	ErrCodeItemNotFound    Code = "ITEM_NOT_FOUND"

	// Reference resolution errors
	ErrCodeAmbiguousReference Code = "AMBIGUOUS_REFERENCE"

	// Network and archive errors
	ErrCodeNetwork       Code = "NETWORK_ERROR"
	ErrCodeArchiveFormat Code = "ARCHIVE_FORMAT"

	// Extraction and storage errors
	ErrCodeParse   Code = "PARSE_FAILURE"
	ErrCodeStorage Code = "STORAGE_FAILURE"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsNotFound reports whether err carries any of the not-found codes.
func IsNotFound(err error) bool {
	switch GetCode(err) {
	case ErrCodeNotFound, ErrCodePackageNotFound, ErrCodeFileNotFound, ErrCodeItemNotFound:
		return true
	}
	return false
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
