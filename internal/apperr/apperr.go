// Package apperr defines the error taxonomy shared across handlers and
// the status codes each code maps to.
package apperr

import (
	"errors"
	"net/http"
)

// Code identifies a class of error understood by handler.respondError.
type Code string

const (
	CodeAuthMissing               Code = "auth_missing"
	CodeAuthInvalid               Code = "auth_invalid"
	CodeRateLimited               Code = "rate_limited"
	CodeBadRequest                Code = "bad_request"
	CodeBackendVectorUnavailable  Code = "backend_vector_unavailable"
	CodeBackendLexicalUnavailable Code = "backend_lexical_unavailable"
	CodeModelError                Code = "model_error"
	CodeInternal                  Code = "internal"
)

// Error is an application error carrying a taxonomy code and an HTTP status.
type Error struct {
	Code    Code
	Status  int
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error for the given taxonomy code with the status that code
// maps to by default.
func New(code Code, message string) *Error {
	return &Error{Code: code, Status: statusFor(code), Message: message}
}

// Wrap attaches a taxonomy code to an underlying error.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Status: statusFor(code), Message: message, cause: cause}
}

func statusFor(code Code) int {
	switch code {
	case CodeAuthMissing:
		return http.StatusUnauthorized
	case CodeAuthInvalid:
		return http.StatusForbidden
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeBackendVectorUnavailable, CodeBackendLexicalUnavailable, CodeModelError, CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// As extracts an *Error from err, if present.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
