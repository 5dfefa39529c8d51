package authadapter

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/infodancer/netlogind/internal/credential"
	"golang.org/x/crypto/bcrypt"
)

// entry is one line of the shadow-style credential file:
// "username:bcrypt-hash:expired", expired ∈ {"0","1"}.
type entry struct {
	hash    string
	expired bool
}

// BcryptFile is the bundled demonstration authentication back end: a local
// shadow-style file of bcrypt-hashed passwords (spec.md §4 "supplemented
// features" — there is no real PAM/SASL stack wired in, so this exists to
// give start_and_authenticate/begin_session/export_environ/cleanup a
// concrete implementation to drive).
type BcryptFile struct {
	path string

	mu      sync.Mutex
	entries map[string]entry
}

// NewBcryptFile loads the credential file at path. A missing file is
// treated as an empty credential store (every authentication attempt is
// denied), matching the worker's fail-closed posture.
func NewBcryptFile(path string) (*BcryptFile, error) {
	b := &BcryptFile{path: path, entries: map[string]entry{}}
	if err := b.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading credential file %s: %w", path, err)
	}
	return b, nil
}

func (b *BcryptFile) load() error {
	f, err := os.Open(b.path)
	if err != nil {
		return err
	}
	defer f.Close()

	entries := map[string]entry{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.SplitN(line, ":", 3)
		if len(fields) < 2 {
			return fmt.Errorf("malformed credential line %q", line)
		}
		e := entry{hash: fields[1]}
		if len(fields) == 3 {
			e.expired = fields[2] == "1"
		}
		entries[fields[0]] = e
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	b.entries = entries
	b.mu.Unlock()
	return nil
}

func (b *BcryptFile) save() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var sb strings.Builder
	for username, e := range b.entries {
		expired := "0"
		if e.expired {
			expired = "1"
		}
		fmt.Fprintf(&sb, "%s:%s:%s\n", username, e.hash, expired)
	}
	return os.WriteFile(b.path, []byte(sb.String()), 0o600)
}

// StartAndAuthenticate prompts for a password (echo-off) and verifies it
// against the stored bcrypt hash. It does not canonicalize the username
// (the file is keyed by exactly the name presented).
func (b *BcryptFile) StartAndAuthenticate(username *string, conv Conversation) error {
	b.mu.Lock()
	e, ok := b.entries[*username]
	b.mu.Unlock()
	if !ok {
		return ErrDenied
	}

	replies, err := conv.Converse([]Prompt{{Style: StyleEchoOff, Text: "Password: "}})
	if err != nil {
		return fmt.Errorf("password prompt: %w", err)
	}
	defer scrubAll(replies)
	if len(replies) != 1 {
		return ErrDenied
	}

	if bcrypt.CompareHashAndPassword([]byte(e.hash), replies[0]) != nil {
		return ErrDenied
	}

	if e.expired {
		return ErrPasswordExpired
	}
	return nil
}

// ChangeExpiredPassword prompts twice (new password, confirmation) and
// rewrites the stored hash. Per spec.md §4's CHAUTHTOK_CHECKS_RUID note,
// the worker only calls this after dropping its real uid to the target
// user, so this runs with the real uid belonging to the account being
// changed — a constraint on the caller, not enforced here.
func (b *BcryptFile) ChangeExpiredPassword(username string, conv Conversation) error {
	replies, err := conv.Converse([]Prompt{
		{Style: StyleEchoOff, Text: "New password: "},
		{Style: StyleEchoOff, Text: "Confirm new password: "},
	})
	if err != nil {
		return fmt.Errorf("password change prompt: %w", err)
	}
	defer scrubAll(replies)
	if len(replies) != 2 || !bytes.Equal(replies[0], replies[1]) {
		return fmt.Errorf("password change: replies did not match")
	}
	if len(replies[0]) == 0 {
		return fmt.Errorf("password change: empty password rejected")
	}

	hash, err := bcrypt.GenerateFromPassword(replies[0], bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing new password: %w", err)
	}

	b.mu.Lock()
	b.entries[username] = entry{hash: string(hash), expired: false}
	b.mu.Unlock()

	return b.save()
}

// BeginSession has nothing to do for this back end beyond the conversation
// contract (info/error messages only); it does not use conv.
func (b *BcryptFile) BeginSession(username string, conv Conversation) error {
	return nil
}

// ExportEnviron contributes no environment variables.
func (b *BcryptFile) ExportEnviron() map[string]string {
	return nil
}

// Cleanup has no session state to tear down.
func (b *BcryptFile) Cleanup(uid int) error {
	return nil
}
