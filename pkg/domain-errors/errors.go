// Package domainerrors carries coded errors across service boundaries.
// Stores return sentinel errors; services wrap them with a Code so transports
// can map outcomes without string matching.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies the domain outcome of a failed operation.
type Code string

const (
	// CodeUnauthorized: a credential or role gate rejected the caller before
	// any store access.
	CodeUnauthorized Code = "unauthorized"
	// CodeNotFound: a referenced case or identity does not exist.
	CodeNotFound Code = "not_found"
	// CodeValidation: input outside a closed enumeration or otherwise malformed.
	CodeValidation Code = "validation"
	// CodeNoOp: an update call supplied no effective field.
	CodeNoOp Code = "no_op"
	// CodeConflict: a set-once or uniqueness rule was violated (e.g. a mirror
	// thread is already attached).
	CodeConflict Code = "conflict"
	// CodeMirrorFailure: the external mirror post failed after the
	// authoritative commit succeeded. Strictly post-commit, non-fatal.
	CodeMirrorFailure Code = "mirror_failure"
	// CodeTimeout: a transaction or external call exceeded its deadline.
	CodeTimeout Code = "timeout"
	// CodeInternal: persistence or other infrastructure failed; nothing was
	// committed.
	CodeInternal Code = "internal"
)

// Error is a coded domain error. Message is safe to surface to callers.
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

// New builds a coded error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps domain codes onto transport status codes. The mirror
// failure code intentionally maps to 200: it is reported as a warning next to
// a successful authoritative result.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidation, CodeNoOp:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeMirrorFailure:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}
