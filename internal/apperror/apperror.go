package apperror

import (
	"errors"
	"net/http"
)

// Kind groups errors by how a caller should react to them.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindState        Kind = "state"
	KindConflict     Kind = "conflict"
	KindNotFound     Kind = "not_found"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindInternal     Kind = "internal"
)

// Error is a sentinel error with a stable machine-readable code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

// New constructs a sentinel error.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Retryable reports whether repeating the call after a re-fetch may succeed.
func (e *Error) Retryable() bool {
	return e != nil && e.Kind == KindConflict
}

// As extracts the classified error from a wrapped chain.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) && target != nil {
		return target, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal when unclassified.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the stable code of err, or "Internal".
func CodeOf(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return "Internal"
}

// IsRetryable reports whether err is a retryable concurrency conflict.
func IsRetryable(err error) bool {
	if e, ok := As(err); ok {
		return e.Retryable()
	}
	return false
}

// HTTPStatus maps an error kind to a response status.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindState, KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Body is the JSON error envelope returned to API callers.
type Body struct {
	Error Detail `json:"error"`
}

// Detail describes a rejected operation.
type Detail struct {
	Kind      Kind   `json:"kind"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// BodyOf builds the response envelope for err. Internal errors hide their text.
func BodyOf(err error) Body {
	if e, ok := As(err); ok {
		return Body{Error: Detail{
			Kind:      e.Kind,
			Code:      e.Code,
			Message:   err.Error(),
			Retryable: e.Retryable(),
		}}
	}
	return Body{Error: Detail{Kind: KindInternal, Code: "Internal", Message: "internal error"}}
}

// Boundary failures shared by every HTTP surface.
var (
	ErrInvalidJSON = New(KindValidation, "InvalidJSON", "request body is not valid JSON")
	ErrForbidden   = New(KindForbidden, "Forbidden", "forbidden")
	ErrNotFound    = New(KindNotFound, "NotFound", "not found")
)
