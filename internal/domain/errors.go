package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrEmbedding     = errors.New("embedding failure")
	ErrIndex         = errors.New("index failure")
	ErrGeneration    = errors.New("generation failure")
)

// Error attaches a kind and the failing operation to an underlying error.
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

func (e *Error) Unwrap() error { return e.Err }

// Is matches the error kind as well as anything in the wrapped chain.
func (e *Error) Is(target error) bool { return e.Kind == target }

// Wrap returns nil when err is nil, otherwise err tagged with kind and op.
// An error already carrying kind is returned unchanged.
func Wrap(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a new error of the given kind.
func Errorf(kind error, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}
