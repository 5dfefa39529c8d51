// Package authadapter defines the pluggable authentication back end contract
// (spec.md §4.2) and the re-entrant conversation capability interface the
// core exposes to it (spec.md §9's re-architecture of the conv_fn callback).
package authadapter

import (
	"errors"

	"github.com/infodancer/netlogind/internal/credential"
)

// ErrDenied is returned by StartAndAuthenticate when the back end rejects
// the presented credentials.
var ErrDenied = errors.New("authentication denied")

// ErrPasswordExpired is returned by StartAndAuthenticate, alongside a nil
// error from the conversation itself, when the back end has verified the
// presented credential but requires it to be changed before the session may
// proceed (the PAM_NEW_AUTHTOK_REQD case, spec.md §4 supplemented features).
// The worker reacts to it by running ChangeExpiredPassword once the real
// uid has been dropped to the target user (see CHAUTHTOK_CHECKS_RUID note).
var ErrPasswordExpired = errors.New("credential expired, change required")

// ErrPromptsRejected is returned by a RejectPrompts conversation when the
// wrapped adapter call attempts an echo-on/echo-off prompt during a phase
// that only permits info/error messages (begin_session, spec.md §4.2).
var ErrPromptsRejected = errors.New("prompts rejected in this phase")

// Style classifies a conversation Prompt.
type Style int

const (
	StyleEchoOn Style = iota
	StyleEchoOff
	StyleInfo
	StyleError
)

// Prompt is one entry in a conversation exchange: a style and the text to
// display.
type Prompt struct {
	Style Style
	Text  string
}

// Conversation is the capability interface an adapter uses to interact with
// the remote user re-entrantly, during StartAndAuthenticate and
// BeginSession. For echo-on/echo-off prompts it returns the captured reply
// as a raw byte buffer (the caller owns it and must scrub it once done;
// Go strings are immutable and cannot be scrubbed, per
// internal/credential/scrub.go); for info/error prompts the returned slice
// is always empty.
//
// Any write/read failure, any reply exceeding the implementation's maximum
// reply size, or any unknown style must cause Converse to scrub every
// reply captured so far and return a non-nil error.
type Conversation interface {
	Converse(prompts []Prompt) (replies [][]byte, err error)
}

// RejectPrompts wraps a Conversation so that echo-on/echo-off prompts are
// rejected with ErrPromptsRejected, while info/error messages still pass
// through unchanged. Used for begin_session (spec.md §4.2).
type RejectPrompts struct {
	Inner Conversation
}

func (r RejectPrompts) Converse(prompts []Prompt) ([][]byte, error) {
	for _, p := range prompts {
		if p.Style == StyleEchoOn || p.Style == StyleEchoOff {
			return nil, ErrPromptsRejected
		}
	}
	return r.Inner.Converse(prompts)
}

// scrubAll zeroes every captured reply, for use by adapters once a reply
// has served its purpose (invariant I3) or on an error path that abandons
// replies already captured.
func scrubAll(replies [][]byte) {
	for _, r := range replies {
		credential.Scrub(r)
	}
}

// Adapter is the four-operation contract the core drives any concrete
// authentication back end through (spec.md §4.2).
type Adapter interface {
	// StartAndAuthenticate authenticates *username, possibly canonicalizing
	// it in place. Returns ErrDenied if the presented credential is
	// rejected, or ErrPasswordExpired if it was accepted but must be
	// changed before the session may proceed.
	StartAndAuthenticate(username *string, conv Conversation) error

	// ChangeExpiredPassword is called only after StartAndAuthenticate
	// returned ErrPasswordExpired, once the worker has dropped its real uid
	// to the target user (spec.md §4's CHAUTHTOK_CHECKS_RUID note).
	ChangeExpiredPassword(username string, conv Conversation) error

	// BeginSession marks the start of the user's session. conv must be a
	// RejectPrompts wrapper per spec.md §4.2.
	BeginSession(username string, conv Conversation) error

	// ExportEnviron returns environment variables to merge into the user's
	// session, before blocklist filtering (applied by the credential
	// transitioner, not here).
	ExportEnviron() map[string]string

	// Cleanup tears down any established credentials/session in reverse
	// order of establishment. Must be safe to call when nothing was
	// established. uid is the target user, since some back ends require
	// the effective uid to be the user's when revoking credentials.
	Cleanup(uid int) error
}
