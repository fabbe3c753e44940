// Package errors defines the coded errors returned across cpetrack's
// surfaces. Codes are stable strings that CLI, MCP and web clients match on.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a class of failure.
type ErrorCode string

const (
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"
	ErrNotFound         ErrorCode = "NOT_FOUND"
	ErrFileNotFound     ErrorCode = "FILE_NOT_FOUND"
	ErrConflict         ErrorCode = "CONFLICT"
	ErrFileTooLarge     ErrorCode = "FILE_TOO_LARGE"
	ErrDecodeFailed     ErrorCode = "DECODE_FAILED"
	ErrExtractionFailed ErrorCode = "EXTRACTION_FAILED"
	ErrCancelled        ErrorCode = "CANCELLED"
	ErrInternal         ErrorCode = "INTERNAL"
)

// statusOf maps each code to the HTTP-style status carried on the error.
var statusOf = map[ErrorCode]int{
	ErrInvalidRequest:   400,
	ErrNotFound:         404,
	ErrFileNotFound:     404,
	ErrConflict:         409,
	ErrFileTooLarge:     413,
	ErrDecodeFailed:     422,
	ErrExtractionFailed: 422,
	ErrCancelled:        499,
	ErrInternal:         500,
}

// CPEError is a coded error with optional structured details.
type CPEError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

func (e *CPEError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code ErrorCode, msg string, details map[string]any) *CPEError {
	return &CPEError{Code: code, Status: statusOf[code], Message: msg, Details: details}
}

// NewInvalidRequest reports bad caller input.
func NewInvalidRequest(msg string) *CPEError {
	return newError(ErrInvalidRequest, msg, nil)
}

// NewNotFound reports a missing entry.
func NewNotFound(identifier string) *CPEError {
	return newError(ErrNotFound, "entry not found: "+identifier,
		map[string]any{"identifier": identifier})
}

// NewFileNotFound reports a missing input file.
func NewFileNotFound(path string) *CPEError {
	return newError(ErrFileNotFound, "file not found: "+path,
		map[string]any{"path": path})
}

func NewConflict(msg string) *CPEError {
	return newError(ErrConflict, msg, nil)
}

// NewFileTooLarge reports an upload or input file over the size limit.
func NewFileTooLarge(max, actual int64) *CPEError {
	return newError(ErrFileTooLarge,
		fmt.Sprintf("file exceeds maximum size: %d bytes (max %d)", actual, max),
		map[string]any{"max_bytes": max, "actual_bytes": actual})
}

// NewDecodeFailed reports a document that could not be turned into text.
// Compare NewExtractionFailed, where text was read but held no fields.
func NewDecodeFailed(name string, err error) *CPEError {
	details := map[string]any{"file": name}
	msg := "failed to decode " + name
	if err != nil {
		details["cause"] = err.Error()
		msg += ": " + err.Error()
	}
	return newError(ErrDecodeFailed, msg, details)
}

// NewExtractionFailed reports decoded text with no usable CPE fields. The
// text travels in Details["raw_text"] so callers can offer manual entry.
func NewExtractionFailed(rawText string) *CPEError {
	return newError(ErrExtractionFailed, "could not extract CPE data from document",
		map[string]any{"raw_text": rawText})
}

func NewCancelled(op string) *CPEError {
	return newError(ErrCancelled, op+" cancelled", nil)
}

// NewInternal hides err from the message and keeps it in Details for logs.
func NewInternal(err error) *CPEError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return newError(ErrInternal, "an internal error occurred", details)
}

// Is reports whether err wraps a CPEError with the given code.
func Is(err error, code ErrorCode) bool {
	e, ok := As(err)
	return ok && e.Code == code
}

// As returns the CPEError wrapped by err, if any.
func As(err error) (*CPEError, bool) {
	var e *CPEError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
