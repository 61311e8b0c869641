package audiochain

import (
	"errors"
	"fmt"

	"pipelined.dev/audiochain/fault"
)

// Sentinel errors to match with errors.Is.
var (
	ErrNotFound        = fault.ErrNotFound
	ErrInvalidState    = fault.ErrInvalidState
	ErrIncompatible    = fault.ErrIncompatible
	ErrOutOfRange      = fault.ErrOutOfRange
	ErrInconsistent    = fault.ErrInconsistent
	ErrAllocationError = fault.ErrAllocationError
	ErrReadOnly        = fault.ErrReadOnly
	ErrWarning         = fault.ErrWarning
)

// ErrorPlay is returned if pipe failed to start playing. Node is the name
// of the algo or chunk that failed, ErrRollback holds errors of the
// teardown of already initialized algos.
type ErrorPlay struct {
	Node        string
	ErrInit     error
	ErrRollback error
}

func (e *ErrorPlay) Error() string {
	switch {
	case e.ErrInit != nil && e.ErrRollback != nil:
		return fmt.Sprintf("play %q: rollback error: %v after init error: %v", e.Node, e.ErrRollback, e.ErrInit)
	case e.ErrInit != nil:
		return fmt.Sprintf("play %q: init error: %v", e.Node, e.ErrInit)
	case e.ErrRollback != nil:
		return fmt.Sprintf("play %q: rollback error: %v", e.Node, e.ErrRollback)
	}
	return ""
}

// Is checks if any of errors match provided sentinel error.
func (e *ErrorPlay) Is(err error) bool {
	if e.ErrInit != nil && errors.Is(e.ErrInit, err) {
		return true
	}
	if e.ErrRollback != nil && errors.Is(e.ErrRollback, err) {
		return true
	}
	return false
}

// Unwrap returns the init error.
func (e *ErrorPlay) Unwrap() error {
	return e.ErrInit
}
