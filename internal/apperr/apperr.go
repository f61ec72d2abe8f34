// Package apperr defines the typed error taxonomy shared by the engine and
// the HTTP transport (§7). Transport translates these to status codes;
// internal callers use errors.As/errors.Is against the sentinel types
// instead of matching on error strings.
package apperr

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error identifier.
type Code string

const (
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeUnauthenticated     Code = "UNAUTHENTICATED"
	CodeForbidden           Code = "FORBIDDEN"
	CodeNotFound            Code = "NOT_FOUND"
	CodeInsufficientFunds   Code = "INSUFFICIENT_FUNDS"
	CodeDuplicateInstrument Code = "DUPLICATE_INSTRUMENT"
	CodeConflict            Code = "CONFLICT"
)

// Error is the single error type used across the engine. Code selects the
// HTTP status at the transport boundary; Message is safe to surface to
// callers.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func Validation(msg string) *Error          { return newErr(CodeValidation, msg) }
func Unauthenticated(msg string) *Error     { return newErr(CodeUnauthenticated, msg) }
func Forbidden(msg string) *Error           { return newErr(CodeForbidden, msg) }
func NotFound(msg string) *Error            { return newErr(CodeNotFound, msg) }
func InsufficientFunds(msg string) *Error   { return newErr(CodeInsufficientFunds, msg) }
func DuplicateInstrument(msg string) *Error { return newErr(CodeDuplicateInstrument, msg) }
func Conflict(msg string) *Error            { return newErr(CodeConflict, msg) }

// Wrap attaches a code and message to an underlying error, preserving it
// via Unwrap.
func Wrap(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, Cause: cause}
}

// HTTPStatus maps a Code to the HTTP status named in §6.2/§7.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation, CodeInsufficientFunds, CodeDuplicateInstrument:
		return 400
	case CodeUnauthenticated:
		return 401
	case CodeForbidden:
		return 403
	case CodeNotFound:
		return 404
	case CodeConflict:
		return 500
	default:
		return 500
	}
}

// IsCode reports whether err is an *Error (directly or wrapped) carrying
// the given code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
