// Package domainerrors provides coded errors for domain and service layers.
// Codes classify failures for transport mapping and tests; messages stay
// user-facing. Store layers return pkg/platform/sentinel errors instead and
// services translate them into coded errors at the boundary.
package domainerrors

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies a class of failure independent of the error text.
type Code string

const (
	// Generic infrastructure and input codes.
	CodeInternal     Code = "INTERNAL"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeTimeout      Code = "TIMEOUT"
	CodeBadRequest   Code = "BAD_REQUEST"
	CodeInvalidInput Code = "INVALID_INPUT"

	// Identity and entitlement.
	CodeUnauthenticated     Code = "UNAUTHENTICATED"
	CodeForbidden           Code = "FORBIDDEN"
	CodeInvalidSecurityCode Code = "INVALID_SECURITY_CODE"
	CodeMissingSecurityCode Code = "MISSING_SECURITY_CODE"

	// Signature lifecycle.
	CodeNotTransitionable     Code = "NOT_TRANSITIONABLE"
	CodeAlreadySigned         Code = "ALREADY_SIGNED"
	CodeMissingRequiredFields Code = "MISSING_REQUIRED_FIELDS"
	CodeFieldLocked           Code = "FIELD_LOCKED"

	// Company status gate.
	CodeCompanyClosed  Code = "COMPANY_CLOSED"
	CodeCompanyDormant Code = "COMPANY_DORMANT"

	// Document shape.
	CodeTooManyTransporters        Code = "TOO_MANY_TRANSPORTERS"
	CodeDuplicateTransporterUsage  Code = "DUPLICATE_TRANSPORTER_USAGE"
	CodeConflictingTransporterData Code = "CONFLICTING_TRANSPORTER_INPUTS"

	// Revision lifecycle.
	CodeRevisionNotFound   Code = "REVISION_NOT_FOUND"
	CodeRevisionNotPending Code = "REVISION_NOT_PENDING"
	CodeNotRevisionAuthor  Code = "NOT_REVISION_AUTHOR"
)

// Error carries a code, a user-facing message and an optional cause.
type Error struct {
	Code    Code
	Message string
	// Details holds the individual entries of an aggregated error, in rule
	// declaration order. Message is their newline join.
	Details []string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error with a user-facing message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted user-facing message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// Aggregate creates a coded error from multiple entries. The entries are kept
// on Details and joined with newlines into the message, preserving order.
func Aggregate(code Code, details []string) *Error {
	return &Error{Code: code, Message: strings.Join(details, "\n"), Details: details}
}

// HasCode reports whether err or any error in its chain carries the code.
func HasCode(err error, code Code) bool {
	var e *Error
	for errors.As(err, &e) {
		if e.Code == code {
			return true
		}
		err = e.cause
		e = nil
	}
	return false
}

// Is is an alias of HasCode kept for call-site readability.
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf returns the outermost code in the chain, or CodeInternal when the
// error is not coded.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// MessageOf returns the user-facing message of the outermost coded error,
// without the code prefix, or the raw error text when the error is not coded.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// DetailsOf returns the aggregated entries of the outermost coded error.
func DetailsOf(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}
