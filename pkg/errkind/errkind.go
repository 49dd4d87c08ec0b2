// Package errkind defines the stable error taxonomy shared across the
// storage and indexing core. Every failure the core returns carries one of
// these kinds so a caller can branch on it with errors.Is/errors.As instead
// of parsing message text.
package errkind

import (
	"errors"
	"fmt"
)

// Kind is a stable, comparable error classification.
type Kind int

const (
	// Unknown is never returned; it is the zero value guard.
	Unknown Kind = iota
	// NotFound: page id, table name, index name, view, database, or RID
	// does not resolve.
	NotFound
	// AlreadyExists: create-database, create-table, create-index, or view
	// whose name is taken.
	AlreadyExists
	// OutOfMemory: buffer pool cannot find an unpinned frame.
	OutOfMemory
	// OutOfSpace: tuple larger than one page minus header.
	OutOfSpace
	// InvalidState: delete of a pinned page, end-checkpoint without
	// begin, unpin of a frame at pin count 0.
	InvalidState
	// Corruption: unreadable page, unknown page type, tombstoned RID
	// fetched as live, checksum mismatch.
	Corruption
	// NotSupported: a construct the core's contracts refuse.
	NotSupported
	// IO: underlying disk failure.
	IO
)

// Error lets a bare Kind serve as an errors.Is sentinel target, e.g.
// errors.Is(err, errkind.NotFound).
func (k Kind) Error() string {
	return k.String()
}

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case AlreadyExists:
		return "already_exists"
	case OutOfMemory:
		return "out_of_memory"
	case OutOfSpace:
		return "out_of_space"
	case InvalidState:
		return "invalid_state"
	case Corruption:
		return "corruption"
	case NotSupported:
		return "not_supported"
	case IO:
		return "io"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind and the component that raised
// it, so errors.Is(err, errkind.NotFound) works regardless of message text.
type Error struct {
	Kind      Kind
	Component string
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Component, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Component, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is support against a bare Kind sentinel, e.g.
// errors.Is(err, errkind.NotFound).
func (e *Error) Is(target error) bool {
	if k, ok := target.(Kind); ok {
		return e.Kind == k
	}
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New constructs an *Error with no wrapped cause.
func New(kind Kind, component, message string) *Error {
	return &Error{Kind: kind, Component: component, Message: message}
}

// Wrap constructs an *Error around an existing cause.
func Wrap(kind Kind, component, message string, cause error) *Error {
	return &Error{Kind: kind, Component: component, Message: message, Cause: cause}
}

// Is reports whether err, or an error it wraps, is an *Error whose Kind is
// k: errkind.NotFound.Is(err). errors.Is(err, errkind.NotFound) does not
// call this method; it goes through (*Error).Is.
func (k Kind) Is(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// Of extracts the Kind of err, or Unknown if err is nil or not an *Error.
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}
