package guides

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is matched by errors for missing guides and guidelines.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument is matched by errors for malformed identifiers.
	ErrInvalidArgument = errors.New("invalid argument")
)

type guideError struct {
	msg  string
	kind error
}

func (e *guideError) Error() string { return e.msg }

func (e *guideError) Unwrap() error { return e.kind }

func notFoundf(format string, args ...any) error {
	return &guideError{msg: fmt.Sprintf(format, args...), kind: ErrNotFound}
}

func invalidf(format string, args ...any) error {
	return &guideError{msg: fmt.Sprintf(format, args...), kind: ErrInvalidArgument}
}
