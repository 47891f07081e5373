// Package apperr defines the error taxonomy shared by the repository core and its adapters.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrIO              = errors.New("io error")
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrDeserialization = errors.New("deserialization error")
	ErrRepo            = errors.New("repository error")
	ErrDatabase        = errors.New("database error")
	ErrInvalidPath     = errors.New("invalid path")
	ErrContract        = errors.New("contract violation")
)

// Error attaches an operation and an optional path to a failure of a given kind.
// It matches both its kind sentinel and its cause under errors.Is.
type Error struct {
	Kind error
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Wrap returns nil when err is nil, err unchanged when it already carries a kind,
// and a new *Error of the given kind otherwise.
func Wrap(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// WrapPath is Wrap with a path attached.
func WrapPath(kind error, op, path string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// New builds an error of the given kind with a formatted message as its cause.
func New(kind error, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// NotFound reports a missing path, hash, identity or record.
func NotFound(op, path string) error {
	return &Error{Kind: ErrNotFound, Op: op, Path: path}
}

// AlreadyExists reports a path that must not exist yet.
func AlreadyExists(op, path string) error {
	return &Error{Kind: ErrAlreadyExists, Op: op, Path: path}
}

// KindOf returns the taxonomy sentinel carried by err, or ErrContract for
// errors that were never classified. The outermost *Error wins.
func KindOf(err error) error {
	var ae *Error
	if errors.As(err, &ae) && ae.Kind != nil {
		return ae.Kind
	}
	for _, k := range []error{
		ErrNotFound, ErrAlreadyExists, ErrDeserialization, ErrInvalidPath,
		ErrRepo, ErrDatabase, ErrIO, ErrContract,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrContract
}
