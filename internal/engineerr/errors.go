// Package engineerr implements the closed error taxonomy every operation of
// the memory engine reports through (spec.md 7). Go has no sum types, so a
// Result<T, ErrorKind> is rendered as the usual (T, error) pair where error
// is always either nil or satisfies *Error.
package engineerr

import (
	"errors"
	"fmt"
)

// Kind is the symbolic error_type from spec.md 7.
type Kind string

const (
	KindStorageUnavailable Kind = "STORAGE_UNAVAILABLE"
	KindValidation         Kind = "VALIDATION"
	KindReadOnly           Kind = "READ_ONLY"
	KindEmbedding          Kind = "EMBEDDING"
	KindRetrieval          Kind = "RETRIEVAL"
	KindConnection         Kind = "CONNECTION"
	KindNotFound           Kind = "NOT_FOUND"
	KindTimeout            Kind = "TIMEOUT"
	KindCancelled          Kind = "CANCELLED"
)

// Code is the stable numeric-ish code from spec.md 7.
type Code string

const (
	CodeStorageUnavailable Code = "E001"
	CodeValidation         Code = "E002"
	CodeReadOnly           Code = "E003"
	CodeEmbedding          Code = "E006"
	CodeRetrieval          Code = "E007"
	CodeConnection         Code = "E010"
	CodeNotFound           Code = "E012"
	CodeTimeout            Code = "E020"
	CodeCancelled          Code = "E021"
)

var kindCodes = map[Kind]Code{
	KindStorageUnavailable: CodeStorageUnavailable,
	KindValidation:         CodeValidation,
	KindReadOnly:           CodeReadOnly,
	KindEmbedding:          CodeEmbedding,
	KindRetrieval:          CodeRetrieval,
	KindConnection:         CodeConnection,
	KindNotFound:           CodeNotFound,
	KindTimeout:            CodeTimeout,
	KindCancelled:          CodeCancelled,
}

// Error is the structured error every tool-call operation may return. It
// never leaks an internal exception type across a component boundary (7:
// "internal exception types do not leak").
type Error struct {
	Type     Kind
	Code     Code
	Message  string
	Solution string
	DocsURL  string
	Context  map[string]any
	wrapped  error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s (%s)", e.Type, e.Code)
	}
	return fmt.Sprintf("%s (%s): %s", e.Type, e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any, for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.wrapped }

// New builds an *Error of the given kind with its fixed code.
func New(kind Kind, message string) *Error {
	return &Error{Type: kind, Code: kindCodes[kind], Message: message, Context: map[string]any{}}
}

// Wrap builds an *Error of the given kind around an underlying cause,
// preserving it for errors.Is/As while presenting the taxonomy at the
// boundary.
func Wrap(kind Kind, cause error, message string) *Error {
	e := New(kind, message)
	e.wrapped = cause
	return e
}

// WithContext attaches a context field (e.g. "memory_id", "url",
// "operation") and returns the receiver for chaining.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = map[string]any{}
	}
	e.Context[key] = value
	return e
}

// WithSolution attaches an actionable hint.
func (e *Error) WithSolution(s string) *Error {
	e.Solution = s
	return e
}

// WithDocsURL attaches a documentation link.
func (e *Error) WithDocsURL(url string) *Error {
	e.DocsURL = url
	return e
}

// Is reports whether target shares this error's Kind, satisfying
// errors.Is(err, engineerr.New(KindNotFound, "")).
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return te.Type == e.Type
	}
	return false
}

// Sentinel causes wrapped by storage backends before being lifted to an
// *Error at the service boundary.
var (
	ErrNotFound      = errors.New("resource not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrReadOnly      = errors.New("engine is in read-only mode")
	ErrUnavailable   = errors.New("storage backend unavailable")
	ErrBoundsExceeded = errors.New("graph bounds exceeded")
)

// FromSentinel maps one of the sentinel errors above (as produced by a
// storage backend) into the public taxonomy. Unrecognized errors are
// wrapped as STORAGE_UNAVAILABLE, never propagated raw (7: boundary
// mapping).
func FromSentinel(err error, message string) *Error {
	switch {
	case errors.Is(err, ErrNotFound):
		return Wrap(KindNotFound, err, message)
	case errors.Is(err, ErrInvalidInput):
		return Wrap(KindValidation, err, message)
	case errors.Is(err, ErrReadOnly):
		return Wrap(KindReadOnly, err, message)
	case errors.Is(err, ErrBoundsExceeded):
		return Wrap(KindRetrieval, err, message)
	default:
		return Wrap(KindStorageUnavailable, err, message)
	}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == kind
	}
	return false
}
