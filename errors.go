package tdcore

import (
	"errors"
	"fmt"
)

// ErrKind classifies every failure the engine can surface, per the
// error-handling design: Parse, Schema, IO, Codec, InvalidArgument, State
// and Consolidation. No operation swallows an error silently; iterators
// latch the error and report it on Err() once next() starts returning false.
type ErrKind int

const (
	// ErrParse indicates malformed schema CSV or command input.
	ErrParse ErrKind = iota
	// ErrSchema indicates an ArraySchema invariant violation.
	ErrSchema
	// ErrIO indicates a filesystem or compression failure, including an
	// unexpected EOF.
	ErrIO
	// ErrCodec indicates a cell buffer shorter than its declared size, or
	// a negative variable-length count.
	ErrCodec
	// ErrInvalidArgument indicates a bad coordinate type, an out-of-range
	// attribute id, an empty range, and similar caller mistakes.
	ErrInvalidArgument
	// ErrState indicates an operation invalid for the current descriptor
	// state: write on a read-mode descriptor, an iterator advanced past
	// its end, too many open arrays.
	ErrState
	// ErrConsolidation indicates a merge produced inconsistent tile
	// bookkeeping; the affected array becomes closed-with-error.
	ErrConsolidation
)

func (k ErrKind) String() string {
	switch k {
	case ErrParse:
		return "Parse"
	case ErrSchema:
		return "Schema"
	case ErrIO:
		return "IO"
	case ErrCodec:
		return "Codec"
	case ErrInvalidArgument:
		return "InvalidArgument"
	case ErrState:
		return "State"
	case ErrConsolidation:
		return "Consolidation"
	default:
		return "Unknown"
	}
}

// TdbError is the engine's single error type: a kind tag, a human-readable
// context string, and an optional wrapped cause.
type TdbError struct {
	kind    ErrKind
	context string
	cause   error
}

func (e *TdbError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("tdcore: %s: %s: %v", e.kind, e.context, e.cause)
	}
	return fmt.Sprintf("tdcore: %s: %s", e.kind, e.context)
}

func (e *TdbError) Unwrap() error {
	return e.cause
}

// Kind reports the error classification, letting callers branch on
// failure class without string-matching the message.
func (e *TdbError) Kind() ErrKind {
	return e.kind
}

func newErr(kind ErrKind, context string, cause error) *TdbError {
	return &TdbError{kind: kind, context: context, cause: cause}
}

// IsKind reports whether err (or anything it wraps) is a *TdbError of the
// given kind.
func IsKind(err error, kind ErrKind) bool {
	var te *TdbError
	if errors.As(err, &te) {
		return te.kind == kind
	}
	return false
}
