// Package errs classifies errors crossing the core/handler boundary.
// Components return kinded errors; the command layer maps each kind to a
// user-visible embed and decides whether the failure is retriable.
package errs

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// Internal is the zero kind for unexpected failures.
	Internal Kind = iota
	// InvalidArgument marks validation failures: bad ranges, self
	// transfers, unknown items.
	InvalidArgument
	// InsufficientFunds marks a failed balance check.
	InsufficientFunds
	// Conflict marks already-active sessions, duplicate subscriptions
	// and cooldowns still in effect.
	Conflict
	// NotFound marks unknown subscription ids, missing channels and
	// missing roles.
	NotFound
	// Forbidden marks missing permissions or role hierarchy.
	Forbidden
	// Upstream marks transient chat-platform or content-source failures.
	Upstream
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid_argument"
	case InsufficientFunds:
		return "insufficient_funds"
	case Conflict:
		return "conflict"
	case NotFound:
		return "not_found"
	case Forbidden:
		return "forbidden"
	case Upstream:
		return "upstream"
	default:
		return "internal"
	}
}

type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) Kind() Kind { return e.kind }

// New creates a kinded error with a user-presentable message.
func New(kind Kind, msg string) error {
	return &Error{kind: kind, msg: msg}
}

// Newf creates a kinded error with a formatted message.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error while keeping its chain.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, msg: msg, err: err}
}

// KindOf reports the kind of err; unclassified errors are Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return Internal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the user-presentable portion of a kinded error, or a
// generic fallback for unclassified errors.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.msg
	}
	return "Something went wrong. Please try again later."
}
