// Package apperr defines the error kinds shared by the stores, the coordinator and the HTTP layer.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind is a stable machine-readable error category.
type Kind string

const (
	KindInvalidInput       Kind = "invalid_input"
	KindOperationTimeout   Kind = "operation_timeout"
	KindUnavailable        Kind = "unavailable"
	KindReadFailure        Kind = "read_failure"
	KindWriteFailure       Kind = "write_failure"
	KindPersistenceFailure Kind = "persistence_failure"
	KindNotFound           Kind = "not_found"
	KindInternal           Kind = "internal"
)

// Sentinel errors, one per kind. An *Error matches the sentinel of its kind with errors.Is.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrOperationTimeout   = errors.New("operation timeout")
	ErrUnavailable        = errors.New("remote store unavailable")
	ErrReadFailure        = errors.New("read failure")
	ErrWriteFailure       = errors.New("write failure")
	ErrPersistenceFailure = errors.New("persistence failure")
	ErrNotFound           = errors.New("not found")
)

var sentinels = map[Kind]error{
	KindInvalidInput:       ErrInvalidInput,
	KindOperationTimeout:   ErrOperationTimeout,
	KindUnavailable:        ErrUnavailable,
	KindReadFailure:        ErrReadFailure,
	KindWriteFailure:       ErrWriteFailure,
	KindPersistenceFailure: ErrPersistenceFailure,
	KindNotFound:           ErrNotFound,
}

// Error carries a kind, a human-readable detail and an optional cause.
type Error struct {
	Kind   Kind
	Detail string
	// Fields holds per-field violations for invalid_input errors.
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// New builds an *Error of the given kind.
func New(kind Kind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: cause}
}

// Newf builds an *Error with a formatted detail and no cause.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Invalid builds an invalid_input error with per-field violations.
func Invalid(detail string, fields map[string]string) *Error {
	return &Error{Kind: KindInvalidInput, Detail: detail, Fields: fields}
}

// KindOf returns the kind of err. Context deadlines count as timeouts.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindOperationTimeout
	}
	for k, s := range sentinels {
		if errors.Is(err, s) {
			return k
		}
	}
	return KindInternal
}

// Detail returns the human-readable part of err.
func Detail(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Err != nil {
			return e.Detail + ": " + e.Err.Error()
		}
		return e.Detail
	}
	return err.Error()
}

// HTTPStatus maps a kind to the response status the HTTP layer uses for it.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnavailable, KindOperationTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
