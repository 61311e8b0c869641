package fault

import (
	"errors"
	"strings"
)

// List wraps errors that might occur when multiple nodes are failing or
// producing warnings.
type List []error

func (l List) Error() string {
	s := make([]string, 0, len(l))
	for _, e := range l {
		s = append(s, e.Error())
	}
	return strings.Join(s, ",")
}

// Is checks if any of errors match provided target.
func (l List) Is(target error) bool {
	for _, e := range l {
		if errors.Is(e, target) {
			return true
		}
	}
	return false
}

// Ret returns untyped nil if list is empty.
func (l List) Ret() error {
	if len(l) > 0 {
		return l
	}
	return nil
}

// Append adds non-nil errors to the list.
func (l List) Append(errs ...error) List {
	for _, err := range errs {
		if err != nil {
			l = append(l, err)
		}
	}
	return l
}

// Warnings returns only warnings of the list.
func (l List) Warnings() List {
	var w List
	for _, e := range l {
		if IsWarning(e) {
			w = append(w, e)
		}
	}
	return w
}
