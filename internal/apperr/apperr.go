// Package apperr classifies service failures so the delivery layer can map them to responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups failures by how they surface to a user.
type Kind string

const (
	// KindValidation covers malformed input; shown inline, request otherwise unaffected.
	KindValidation Kind = "validation"
	// KindNotFound covers absent entities and entities not owned by the caller.
	KindNotFound Kind = "not_found"
	// KindConflict covers transitions the current state forbids.
	KindConflict Kind = "conflict"
	// KindUnauthorized covers requests without an identity.
	KindUnauthorized Kind = "unauthorized"
	// KindForbidden covers identities lacking a required role.
	KindForbidden Kind = "forbidden"
	// KindInternal covers storage and infrastructure failures.
	KindInternal Kind = "internal"
)

// Error carries a kind, an operation-scoped code and a user-facing message.
type Error struct {
	kind    Kind
	code    string
	message string
	err     error
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

// Kind reports the failure class.
func (e *Error) Kind() Kind {
	return e.kind
}

// Code reports the operation.reason code.
func (e *Error) Code() string {
	return e.code
}

// Message reports the text safe to show to the user.
func (e *Error) Message() string {
	return e.message
}

// New builds an Error whose code is "<operation>.<reason>".
func New(kind Kind, operation, reason, message string, cause error) error {
	return &Error{
		kind:    kind,
		code:    fmt.Sprintf("%s.%s", operation, reason),
		message: message,
		err:     cause,
	}
}

func Validation(operation, reason, message string, cause error) error {
	return New(KindValidation, operation, reason, message, cause)
}

func NotFound(operation, reason, message string, cause error) error {
	return New(KindNotFound, operation, reason, message, cause)
}

func Conflict(operation, reason, message string, cause error) error {
	return New(KindConflict, operation, reason, message, cause)
}

func Internal(operation, reason string, cause error) error {
	return New(KindInternal, operation, reason, "something went wrong", cause)
}

// KindOf extracts the failure class; unclassified errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.kind
	}
	return KindInternal
}

// CodeOf extracts the operation.reason code, if any.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.code
	}
	return ""
}

// MessageOf extracts the user-facing message with a generic fallback.
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.message != "" {
		return appErr.message
	}
	return "something went wrong"
}

// HTTPStatus maps a kind onto the response status used by the web layer.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
