// Package glinterr defines the tagged error kinds shared by every Glint
// component, per the error handling design in spec §7.
package glinterr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind tags an error with one of the fixed variants spec §7 requires.
type Kind int

const (
	// Unknown is the zero value; never returned deliberately.
	Unknown Kind = iota
	// Io is an underlying read/write failure; retryable by the caller.
	Io
	// PermissionDenied means raw volume or journal access was refused.
	PermissionDenied
	// Unsupported means the backend can't handle this volume.
	Unsupported
	// Corrupt means an MFT record or snapshot failed structural validation.
	Corrupt
	// JournalLost means a USN gap, wrap, or backpressure overflow occurred.
	JournalLost
	// SnapshotIncompatible means the format version or CRC didn't match.
	SnapshotIncompatible
	// Cancelled means cooperative cancellation was observed.
	Cancelled
	// InvalidQuery means the parser rejected the input; carries an offset.
	InvalidQuery
)

func (k Kind) String() string {
	switch k {
	case Io:
		return "io"
	case PermissionDenied:
		return "permission_denied"
	case Unsupported:
		return "unsupported"
	case Corrupt:
		return "corrupt"
	case JournalLost:
		return "journal_lost"
	case SnapshotIncompatible:
		return "snapshot_incompatible"
	case Cancelled:
		return "cancelled"
	case InvalidQuery:
		return "invalid_query"
	default:
		return "unknown"
	}
}

// Error is a Glint error tagged with a Kind. It implements errors.Is against
// another *Error with the same Kind (use the package-level Is to test for a
// Kind), and Unwrap for error chains built with github.com/pkg/errors.
type Error struct {
	kind   Kind
	msg    string
	cause  error
	Offset int // set only for InvalidQuery
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.cause }

// Kind reports the tagged error kind.
func (e *Error) Kind() Kind { return e.kind }

// Is lets errors.Is(err, otherGlintErr) match on Kind alone.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.kind == t.kind
	}
	return false
}

// New builds a tagged error with a message, recording a stack trace via
// github.com/pkg/errors so higher layers can log with context.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg, cause: errors.New(msg)}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap tags an existing error with a Kind, preserving it as the cause so
// errors.Unwrap/errors.As still reach the original error.
func Wrap(kind Kind, cause error, msg string) *Error {
	return &Error{kind: kind, msg: msg, cause: errors.Wrap(cause, msg)}
}

// Wrapf is Wrap with fmt.Sprintf-style formatting.
func Wrapf(kind Kind, cause error, format string, args ...any) *Error {
	return Wrap(kind, cause, fmt.Sprintf(format, args...))
}

// Is reports whether the first *Error in err's chain is tagged with kind;
// *Error values deeper in the chain are not consulted.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.kind == kind
	}
	return false
}

// InvalidQueryAt builds an InvalidQuery error carrying the byte offset into
// the query text where parsing failed.
func InvalidQueryAt(offset int, msg string) *Error {
	e := New(InvalidQuery, msg)
	e.Offset = offset
	return e
}
