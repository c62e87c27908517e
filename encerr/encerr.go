// Package encerr defines the error taxonomy shared by every layer of
// Encapure: validation, model, resource and persistence failures.
//
// Handlers map a [Kind] to a transport status without inspecting message
// text. Construct errors with [Validationf], [Modelf], [Resourcef] and
// [Persistencef]; inspect them with [KindOf] or errors.Is against the
// sentinel values.
package encerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and status-code mapping.
type Kind int

const (
	// KindUnknown is returned by KindOf for errors outside this taxonomy.
	KindUnknown Kind = iota
	// KindValidation covers malformed or out-of-range caller input.
	// Never retried internally; reported to the caller as-is.
	KindValidation
	// KindModel covers tokenization failures, shape mismatches and
	// transformer-runtime errors. Reported as an internal error; the
	// offending session is marked suspect by the caller.
	KindModel
	// KindResource covers permit timeouts, pool exhaustion and session
	// blacklist exhaustion. Reported as a retryable, temporary condition.
	KindResource
	// KindPersistence covers embedding-cache read/write failures.
	// Non-fatal; callers log and treat the cache as absent.
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindModel:
		return "model"
	case KindResource:
		return "resource"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// Sentinel values for errors.Is checks against a specific kind.
var (
	ErrValidation  = errors.New("validation error")
	ErrModel       = errors.New("model error")
	ErrResource    = errors.New("resource error")
	ErrPersistence = errors.New("persistence error")
)

// Error is a kinded error carrying a human-readable message and an
// optional wrapped cause.
type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.err }

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	switch e.kind {
	case KindValidation:
		return target == ErrValidation
	case KindModel:
		return target == ErrModel
	case KindResource:
		return target == ErrResource
	case KindPersistence:
		return target == ErrPersistence
	default:
		return false
	}
}

// Kind returns the error's classification.
func (e *Error) Kind() Kind { return e.kind }

func newf(k Kind, format string, args ...any) *Error {
	return &Error{kind: k, msg: fmt.Sprintf(format, args...)}
}

// Validationf builds a KindValidation error.
func Validationf(format string, args ...any) *Error { return newf(KindValidation, format, args...) }

// Modelf builds a KindModel error, optionally wrapping cause.
func Modelf(cause error, format string, args ...any) *Error {
	e := newf(KindModel, format, args...)
	e.err = cause
	return e
}

// Resourcef builds a KindResource error, optionally wrapping cause.
func Resourcef(cause error, format string, args ...any) *Error {
	e := newf(KindResource, format, args...)
	e.err = cause
	return e
}

// Persistencef builds a KindPersistence error, optionally wrapping cause.
func Persistencef(cause error, format string, args ...any) *Error {
	e := newf(KindPersistence, format, args...)
	e.err = cause
	return e
}

// KindOf returns the Kind of err, or KindUnknown if err is not (or does
// not wrap) an *Error from this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindUnknown
}
