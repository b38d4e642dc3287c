package ckm

import (
	"errors"
	"fmt"
)

// Sentinel errors. Returned errors wrap one of these so callers can
// classify failures with errors.Is.
var (
	// ErrInvalidArgument marks caller input that cannot be mapped or used.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUpstream marks a failed CKM request: transport failure or non-2xx.
	ErrUpstream = errors.New("ckm upstream error")

	// ErrDecode marks a CKM response body that could not be decoded.
	ErrDecode = errors.New("ckm decode error")

	// ErrResponseTooLarge marks a CKM response body over the client limit.
	ErrResponseTooLarge = errors.New("response too large")
)

// argError keeps the user-facing message intact while matching
// ErrInvalidArgument.
type argError struct {
	msg string
}

func (e *argError) Error() string { return e.msg }

func (e *argError) Unwrap() error { return ErrInvalidArgument }

func invalidArgf(format string, args ...any) error {
	return &argError{msg: fmt.Sprintf(format, args...)}
}

// opError prefixes a failure with the operation that produced it and
// matches both the cause and the given sentinel.
type opError struct {
	op       string
	sentinel error
	err      error
}

func (e *opError) Error() string { return e.op + ": " + e.err.Error() }

func (e *opError) Unwrap() []error { return []error{e.sentinel, e.err} }
