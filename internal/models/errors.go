package models

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the point layer matches exactly one of
// these with errors.Is.
var (
	ErrParse           = errors.New("parse error")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidOperator = errors.New("invalid operator")
	ErrStorage         = errors.New("storage error")
)

// Error carries the failing operation, its kind and the underlying cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind sentinel and the cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError builds an Error of the given kind.
func NewError(kind error, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// InvalidInput is shorthand for an ErrInvalidInput error with a message.
func InvalidInput(op, format string, args ...any) *Error {
	return NewError(ErrInvalidInput, op, fmt.Errorf(format, args...))
}

// StorageError wraps a backend failure. Errors that already carry a kind are
// returned unchanged so the first classification wins.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return NewError(ErrStorage, op, err)
}
