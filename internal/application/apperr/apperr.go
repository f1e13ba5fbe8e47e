// Package apperr is the error taxonomy use cases return to their callers.
// Every error carries a Kind, a stable machine Code and a human Message.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation          Kind = "validation"
	KindInsufficientStock   Kind = "insufficient_stock"
	KindNotFound            Kind = "not_found"
	KindGateway             Kind = "gateway"
	KindIdempotencyConflict Kind = "idempotency_conflict"
	KindAuthorization       Kind = "authorization"
	KindInternal            Kind = "internal"
)

// Retryable reports whether the caller may repeat the same request unchanged.
func (k Kind) Retryable() bool { return k == KindGateway }

// LineError pins a validation failure to one requested line.
type LineError struct {
	Index     int    `json:"index"`
	ProductID string `json:"product_id,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Lines   []LineError
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// With attaches a detail entry and returns e.
func (e *Error) With(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func Wrap(kind Kind, code, msg string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Err: err}
}

func Validation(code, msg string) *Error { return New(KindValidation, code, msg) }

func NotFound(code, msg string) *Error { return New(KindNotFound, code, msg) }

func Forbidden(code, msg string) *Error { return New(KindAuthorization, code, msg) }

func Conflict(code, msg string, err error) *Error {
	return Wrap(KindIdempotencyConflict, code, msg, err)
}

func Gateway(code string, err error) *Error {
	return Wrap(KindGateway, code, "payment processor unavailable, retry later", err)
}

// Internal hides err behind a generic message; err is kept for logs only.
func Internal(code string, err error) *Error {
	return Wrap(KindInternal, code, "internal error", err)
}

// Lines builds a validation error listing every offending line.
func Lines(code, msg string, lines []LineError) *Error {
	e := Validation(code, msg)
	e.Lines = lines
	return e
}

// As extracts the *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf classifies any error; unclassified errors are internal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the machine code of err, or "INTERNAL" when err is unclassified.
func CodeOf(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return "INTERNAL"
}
