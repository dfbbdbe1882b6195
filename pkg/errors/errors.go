package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// Code identifies a class of domain failure. Codes are stable strings so they
// can travel through logs, audit events, and API error envelopes unchanged.
type Code string

const (
	// CodeValidationFailed covers one or more violated input rules. The full
	// violation list rides along via ValidationError, not just the first hit.
	CodeValidationFailed Code = "validation_failed"
	// CodeInvalidSignatureFormat is the signature-specific subtype surfaced
	// inside a validation failure.
	CodeInvalidSignatureFormat Code = "invalid_signature_format"
	// CodeAlreadySigned rejects a second signing attempt.
	CodeAlreadySigned Code = "already_signed"
	// CodeCannotModifySigned rejects edits or deletes of a signed slip.
	CodeCannotModifySigned Code = "cannot_modify_signed"
	// CodeNotFound covers unknown tokens and unknown slip IDs alike so the
	// public surface leaks nothing about which part was wrong.
	CodeNotFound Code = "not_found"
	// CodeAccessExpired means the signing window has closed (activity date
	// plus the configured grace period is in the past).
	CodeAccessExpired Code = "access_expired"
	// CodeDeliveryFailed marks a per-recipient notification failure. It is
	// collected, never propagated out of a reminder batch.
	CodeDeliveryFailed Code = "delivery_failed"
	// CodeInvalidState covers operations against an entity in the wrong
	// lifecycle state, e.g. creating slips for an unconfirmed booking.
	CodeInvalidState Code = "invalid_state"
	CodeBadRequest   Code = "bad_request"
	CodeUnauthorized Code = "unauthorized"
	CodeInternal     Code = "internal"
)

// Error is the domain error type carried across service boundaries. Handlers
// translate it to HTTP via ToHTTPStatus; everything else just wraps and
// forwards.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a domain error with a code and human-readable message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var de *Error
	for stderrors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		if err == nil {
			return false
		}
	}
	return false
}

// CodeOf extracts the outermost domain code, defaulting to CodeInternal for
// unclassified errors.
func CodeOf(err error) Code {
	var de *Error
	if stderrors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ValidationError aggregates every violated rule from a single validation
// pass so the caller can surface a complete correction list in one round
// trip.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", CodeValidationFailed, strings.Join(e.Violations, "; "))
}

// NewValidation builds a ValidationError wrapped in a coded Error so both
// errors.As extraction and code matching work.
func NewValidation(violations []string) *Error {
	return &Error{
		Code:    CodeValidationFailed,
		Message: "signature validation failed",
		cause:   &ValidationError{Violations: violations},
	}
}

// ViolationsOf returns the violation list carried by err, or nil when err is
// not a validation failure.
func ViolationsOf(err error) []string {
	var ve *ValidationError
	if stderrors.As(err, &ve) {
		return ve.Violations
	}
	return nil
}

// ToHTTPStatus maps a domain code onto an HTTP status for the transport
// layer's error envelope.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeValidationFailed, CodeInvalidSignatureFormat:
		return http.StatusUnprocessableEntity
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeAlreadySigned:
		return http.StatusConflict
	case CodeCannotModifySigned, CodeInvalidState:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAccessExpired:
		return http.StatusGone
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeDeliveryFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
