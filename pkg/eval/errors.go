package eval

import (
	"errors"
	"fmt"
)

// Kind buckets an orchestration error for the HTTP boundary.
type Kind string

const (
	KindInput    Kind = "input"
	KindAuth     Kind = "auth"
	KindNotFound Kind = "not_found"
	KindConfig   Kind = "config"
	KindProvider Kind = "provider"
	KindStorage  Kind = "storage"
	KindInternal Kind = "internal"
)

// Error is a kinded orchestration error. The API layer maps Kind to an HTTP
// status; Message is safe to surface to the caller.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("eval: %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("eval: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func errf(kind Kind, wrapped error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: wrapped}
}
