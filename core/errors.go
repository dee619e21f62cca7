package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the graph engine. Errors are
// structured values, never bare numeric codes.
type ErrorKind int

const (
	// KindMissingInput: a required upstream capability or field is absent.
	KindMissingInput ErrorKind = iota
	// KindInvalidPipeline: structural mismatch, e.g. a field not reachable
	// by the operation that needs it.
	KindInvalidPipeline
	// KindBackendFailure: the ray-tracing or compute backend reported a
	// fault. Always fatal; no partial results are trusted downstream.
	KindBackendFailure
	// KindExhausted: an allocation failed.
	KindExhausted
)

// Sentinels for errors.Is matching.
var (
	ErrMissingInput    = errors.New("missing input")
	ErrInvalidPipeline = errors.New("invalid pipeline")
	ErrBackendFailure  = errors.New("backend failure")
	ErrExhausted       = errors.New("exhausted")
)

type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error // optional cause
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrMissingInput:
		return e.Kind == KindMissingInput
	case ErrInvalidPipeline:
		return e.Kind == KindInvalidPipeline
	case ErrBackendFailure:
		return e.Kind == KindBackendFailure
	case ErrExhausted:
		return e.Kind == KindExhausted
	}
	return false
}

func (k ErrorKind) String() string {
	switch k {
	case KindMissingInput:
		return "missing input"
	case KindInvalidPipeline:
		return "invalid pipeline"
	case KindBackendFailure:
		return "backend failure"
	case KindExhausted:
		return "exhausted"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

func MissingInputf(format string, args ...any) error {
	return &Error{Kind: KindMissingInput, Msg: fmt.Sprintf(format, args...)}
}

func InvalidPipelinef(format string, args ...any) error {
	return &Error{Kind: KindInvalidPipeline, Msg: fmt.Sprintf(format, args...)}
}

func Exhaustedf(format string, args ...any) error {
	return &Error{Kind: KindExhausted, Msg: fmt.Sprintf(format, args...)}
}

func BackendFailuref(format string, args ...any) error {
	return &Error{Kind: KindBackendFailure, Msg: fmt.Sprintf(format, args...)}
}

// BackendFailure wraps a backend error, preserving it for errors.Unwrap.
func BackendFailure(err error, msg string) error {
	return &Error{Kind: KindBackendFailure, Msg: msg, Err: err}
}
