// Package errors provides error wrapping and the failure taxonomy shared by the
// installer stages.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a failure by how the installer reacts to it.
type Kind uint8

const (
	// KindUnknown is any error that was never classified.
	KindUnknown Kind = iota
	// KindUsage is a bad or missing command line value.
	KindUsage
	// KindPrivilege means the process is not elevated.
	KindPrivilege
	// KindDevice means the target drive was not found, not ready or not removable.
	KindDevice
	// KindPackaging means an embedded payload entry is missing from the build.
	KindPackaging
	// KindExternalTool is a non-zero exit from an invoked OS utility. It is the
	// only retried kind.
	KindExternalTool
	// KindBestEffort is logged and never surfaced as a program failure.
	KindBestEffort
)

func (k Kind) String() string {
	switch k {
	case KindUsage:
		return "usage"
	case KindPrivilege:
		return "privilege"
	case KindDevice:
		return "device"
	case KindPackaging:
		return "packaging"
	case KindExternalTool:
		return "external_tool"
	case KindBestEffort:
		return "best_effort"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Msg is the user-facing message; Err, when set,
// is the underlying cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String() + " error"
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns a classified error with a message and no cause.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf is New with formatting.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WithKind classifies err, replacing its message with msg when msg is non-empty.
// If err is nil, it returns nil.
func WithKind(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Causes returns the messages of every error wrapped by err, outermost first,
// skipping err itself and repeated messages.
func Causes(err error) []string {
	var out []string
	last := ""
	if err != nil {
		last = err.Error()
	}
	for cur := stderrors.Unwrap(err); cur != nil; cur = stderrors.Unwrap(cur) {
		msg := cur.Error()
		if msg == last || msg == "" {
			continue
		}
		out = append(out, msg)
		last = msg
	}
	return out
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Wrap wraps an error with additional context information.
// If err is nil, it returns nil without wrapping.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}
