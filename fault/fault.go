// Package fault defines the error taxonomy shared by all audiochain
// packages. Every error returned by the engine carries a Kind which can be
// matched with errors.Is against the sentinels of this package:
//
//	if errors.Is(err, fault.ErrNotFound) {
//		...
//	}
//
// Warning is a distinct kind: the operation succeeded, but a value was
// adjusted on the way. Callers may treat warnings as success with IsOK.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error.
type Kind uint8

// Error kinds.
const (
	// Unknown is the kind of errors that were not produced by audiochain.
	Unknown Kind = iota
	// NotFound is returned for unknown names, keys and templates.
	NotFound
	// InvalidState is returned if operation is illegal for the current
	// pipe or algo state.
	InvalidState
	// Incompatible is returned if capabilities don't match on connect.
	Incompatible
	// OutOfRange is returned if value is outside declared limits.
	OutOfRange
	// Inconsistent is returned if cross-field validation fails.
	Inconsistent
	// AllocationError is returned if memory pool is exhausted.
	AllocationError
	// ReadOnly is returned when system resources are mutated.
	ReadOnly
	// Warning means that operation succeeded with adjusted value.
	Warning
)

var kindNames = [...]string{
	Unknown:         "unknown",
	NotFound:        "not found",
	InvalidState:    "invalid state",
	Incompatible:    "incompatible",
	OutOfRange:      "out of range",
	Inconsistent:    "inconsistent",
	AllocationError: "allocation error",
	ReadOnly:        "read only",
	Warning:         "warning",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Sentinel errors to match with errors.Is.
var (
	ErrNotFound        = &Error{Kind: NotFound}
	ErrInvalidState    = &Error{Kind: InvalidState}
	ErrIncompatible    = &Error{Kind: Incompatible}
	ErrOutOfRange      = &Error{Kind: OutOfRange}
	ErrInconsistent    = &Error{Kind: Inconsistent}
	ErrAllocationError = &Error{Kind: AllocationError}
	ErrReadOnly        = &Error{Kind: ReadOnly}
	ErrWarning         = &Error{Kind: Warning}
)

// Error is a structured error code plus an optional diagnostic.
type Error struct {
	Kind    Kind
	Op      string // operation, e.g. "connect output"
	Subject string // instance name or key the error refers to
	Err     error  // diagnostic
}

// New returns an error of provided kind with formatted diagnostic.
func New(kind Kind, op, subject, format string, args ...interface{}) *Error {
	var err error
	if format != "" {
		err = fmt.Errorf(format, args...)
	}
	return &Error{Kind: kind, Op: op, Subject: subject, Err: err}
}

// Wrap returns an error of provided kind which wraps err.
func Wrap(kind Kind, op, subject string, err error) *Error {
	return &Error{Kind: kind, Op: op, Subject: subject, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
	}
	if e.Subject != "" {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(fmt.Sprintf("%q", e.Subject))
	}
	if b.Len() > 0 {
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the diagnostic error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match if target is an *Error of the same kind and its other
// fields are either empty or equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	if t.Op != "" && t.Op != e.Op {
		return false
	}
	if t.Subject != "" && t.Subject != e.Subject {
		return false
	}
	return t.Err == nil || errors.Is(e.Err, t.Err)
}

// KindOf returns the kind of the first *Error found in err chain. If err is
// a List, the most severe kind is returned.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var l List
	if errors.As(err, &l) {
		kind := Unknown
		for _, e := range l {
			k := KindOf(e)
			if kind == Unknown || kind == Warning {
				kind = k
			}
		}
		return kind
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// IsWarning returns true if err is not nil and every error it holds is a
// warning.
func IsWarning(err error) bool {
	if err == nil {
		return false
	}
	var l List
	if errors.As(err, &l) {
		for _, e := range l {
			if !IsWarning(e) {
				return false
			}
		}
		return len(l) > 0
	}
	return KindOf(err) == Warning
}

// IsError returns true if err holds at least one hard error.
func IsError(err error) bool {
	return err != nil && !IsWarning(err)
}

// IsOK returns true if err is nil or a warning.
func IsOK(err error) bool {
	return !IsError(err)
}

// Warningf returns a warning with formatted diagnostic.
func Warningf(op, subject, format string, args ...interface{}) *Error {
	return New(Warning, op, subject, format, args...)
}
