// Package neterr defines netlogind's error taxonomy (spec.md §7): typed
// errors that let a broker or listener decide propagation without string
// matching.
package neterr

import "fmt"

// Category classifies an Error for propagation decisions.
type Category int

const (
	// Configuration covers startup failures: not running as root, socket
	// already in use, bind/listen/chmod failure. Aborts the listener.
	Configuration Category = iota
	// Protocol covers malformed frames, unexpected tags, over-length
	// payloads, premature EOF. Fatal to the session only.
	Protocol
	// Auth covers adapter denial, auth timeout, empty/unknown username.
	// Surfaced to the client as FINISH(1).
	Auth
	// Credential covers any failed step of the credential transition or a
	// post-step verification disagreement. Surfaced as FINISH(1).
	Credential
	// Io covers any underlying read/write/accept/connect/fork/wait failure.
	Io
	// Child covers a command that exited non-zero or was killed by signal.
	// Reported to stderr only, never fatal.
	Child
)

func (c Category) String() string {
	switch c {
	case Configuration:
		return "configuration"
	case Protocol:
		return "protocol"
	case Auth:
		return "auth"
	case Credential:
		return "credential"
	case Io:
		return "io"
	case Child:
		return "child"
	default:
		return "unknown"
	}
}

// Error is a netlogind error tagged with a Category.
type Error struct {
	Cat Category
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Cat, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Cat, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// CategoryOf returns the category of err if it is (or wraps) a *Error, and
// false otherwise.
func CategoryOf(err error) (Category, bool) {
	var nerr *Error
	if asError(err, &nerr) {
		return nerr.Cat, true
	}
	return 0, false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// New builds an *Error categorized cat, wrapping err with op context.
func New(cat Category, op string, err error) *Error {
	return &Error{Cat: cat, Op: op, Err: err}
}

func Configurationf(op string, err error) *Error { return New(Configuration, op, err) }
func Protocolf(op string, err error) *Error      { return New(Protocol, op, err) }
func Authf(op string, err error) *Error          { return New(Auth, op, err) }
func Credentialf(op string, err error) *Error    { return New(Credential, op, err) }
func Iof(op string, err error) *Error            { return New(Io, op, err) }
func Childf(op string, err error) *Error         { return New(Child, op, err) }
