// Package errors defines the coded error taxonomy shared by the
// recommendation core. Codes distinguish retryable provider failures from
// caller bugs so the embedding chain and sync engine can decide between
// failover, per-item retry, and immediate surfacing.
package errors

import (
	"errors"
	"fmt"
)

// Code identifies a class of failure.
type Code string

const (
	// CodeProviderTransient indicates a retryable embedding provider failure
	// (timeout, rate limit, 5xx). Triggers failover to the next provider.
	CodeProviderTransient Code = "PROVIDER_TRANSIENT"
	// CodeProviderFatal indicates a non-retryable provider failure such as
	// malformed input. Surfaced immediately, never failed over.
	CodeProviderFatal Code = "PROVIDER_FATAL"
	// CodeStoreUnavailable indicates the catalog or vector store is unreachable.
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
	// CodeEmbeddingUnavailable indicates every provider in the chain was exhausted.
	CodeEmbeddingUnavailable Code = "EMBEDDING_UNAVAILABLE"
	// CodeNotFound indicates an unknown opportunity or user ID. Distinct from
	// an empty result set, which is not an error.
	CodeNotFound Code = "NOT_FOUND"
	// CodeRateLimited indicates the per-user request limiter rejected the call.
	CodeRateLimited Code = "RATE_LIMITED"
	// CodeInvalidArgument indicates invalid input parameters.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
)

// Error is a coded error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a coded error.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with a code and message.
func Wrap(cause error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Cause: cause}
}

// ProviderTransient creates a retryable provider error.
func ProviderTransient(msg string, cause error) *Error {
	return &Error{Code: CodeProviderTransient, Message: msg, Cause: cause}
}

// ProviderFatal creates a non-retryable provider error.
func ProviderFatal(msg string, cause error) *Error {
	return &Error{Code: CodeProviderFatal, Message: msg, Cause: cause}
}

// StoreUnavailable creates a store unreachable error.
func StoreUnavailable(msg string, cause error) *Error {
	return &Error{Code: CodeStoreUnavailable, Message: msg, Cause: cause}
}

// EmbeddingUnavailable creates a chain exhaustion error.
func EmbeddingUnavailable(msg string, cause error) *Error {
	return &Error{Code: CodeEmbeddingUnavailable, Message: msg, Cause: cause}
}

// NotFound creates a not found error.
func NotFound(kind, id string) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s not found: %s", kind, id)}
}

// RateLimited creates a rate limited error.
func RateLimited(msg string) *Error {
	return &Error{Code: CodeRateLimited, Message: msg}
}

// IsCode reports whether err (or any error in its chain) carries the code.
func IsCode(err error, code Code) bool {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code == code
	}
	return false
}

// IsTransient reports whether err is safe to retry or fail over.
func IsTransient(err error) bool {
	return IsCode(err, CodeProviderTransient) || IsCode(err, CodeStoreUnavailable)
}

// CodeOf extracts the code from an error chain, or returns the default.
func CodeOf(err error, def Code) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return def
}
