// Package apperr defines the error kinds surfaced by the mail, cache and
// assistant layers.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that need to branch on it.
type Kind int

const (
	KindUnknown Kind = iota
	NotFound
	NotConfigured
	AuthenticationFailed
	ProviderUnavailable
	StorageUnavailable
	ParseFailure
	ValidationFailed
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case NotConfigured:
		return "not configured"
	case AuthenticationFailed:
		return "authentication failed"
	case ProviderUnavailable:
		return "provider unavailable"
	case StorageUnavailable:
		return "storage unavailable"
	case ParseFailure:
		return "parse failure"
	case ValidationFailed:
		return "validation failed"
	default:
		return "unknown"
	}
}

// Error is a classified error. Op names the failing operation and Msg is
// the human-readable text shown to the user.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Op != "" && e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an error of the given kind with a user-facing message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf is New with formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind. A nil err yields nil. An err that is
// already classified keeps its original kind.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return &Error{Kind: ae.Kind, Op: op, Msg: ae.Msg, Err: err}
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the text to show a user for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		if ae.Msg != "" {
			return ae.Msg
		}
		if ae.Err != nil {
			return fmt.Sprintf("%s: %v", capitalize(ae.Kind.String()), ae.Err)
		}
		return capitalize(ae.Kind.String())
	}
	return err.Error()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
