// Package errors provides the classified error types used across the
// control plane. The core never panics across its API boundary: every
// failure surfaces as a classified error or a structured result value.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a control-plane error.
type Kind int

const (
	// KindUnknown indicates an unclassified error.
	KindUnknown Kind = iota
	// KindInvalidArgument indicates bad input: unknown agent or
	// resource, out-of-range thresholds, malformed payloads.
	KindInvalidArgument
	// KindPolicyDenied indicates a cross-tenant operation blocked by
	// ownership policy.
	KindPolicyDenied
	// KindNotAuthorized indicates a sender missing from the secure
	// allow-list.
	KindNotAuthorized
	// KindUnavailable indicates an external transport or persistence
	// failure.
	KindUnavailable
	// KindNotFound indicates an unknown task, agent, or route.
	KindNotFound
	// KindIntegrity indicates a secure-receive failure: decryption,
	// signature, or sender identity mismatch.
	KindIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "INVALID_ARGUMENT"
	case KindPolicyDenied:
		return "POLICY_DENIED"
	case KindNotAuthorized:
		return "NOT_AUTHORIZED"
	case KindUnavailable:
		return "UNAVAILABLE"
	case KindNotFound:
		return "NOT_FOUND"
	case KindIntegrity:
		return "INTEGRITY"
	default:
		return "UNKNOWN"
	}
}

// Error is a classified control-plane error.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches errors of the same kind so sentinel comparisons work with
// the standard errors package.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
	}
	return false
}

// New creates a classified error.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a classification to an underlying error.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// InvalidArgument creates a KindInvalidArgument error.
func InvalidArgument(format string, args ...interface{}) *Error {
	return New(KindInvalidArgument, format, args...)
}

// PolicyDenied creates a KindPolicyDenied error.
func PolicyDenied(format string, args ...interface{}) *Error {
	return New(KindPolicyDenied, format, args...)
}

// NotAuthorized creates a KindNotAuthorized error.
func NotAuthorized(format string, args ...interface{}) *Error {
	return New(KindNotAuthorized, format, args...)
}

// Unavailable creates a KindUnavailable error.
func Unavailable(format string, args ...interface{}) *Error {
	return New(KindUnavailable, format, args...)
}

// NotFound creates a KindNotFound error.
func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

// Integrity creates a KindIntegrity error.
func Integrity(format string, args ...interface{}) *Error {
	return New(KindIntegrity, format, args...)
}

// KindOf extracts the classification from an error chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
