package neterr

import (
	"errors"
	"fmt"
	"testing"
)

func TestCategoryOf(t *testing.T) {
	err := Protocolf("read_message", errors.New("bad tag"))
	cat, ok := CategoryOf(err)
	if !ok || cat != Protocol {
		t.Fatalf("CategoryOf() = %v, %v, want Protocol, true", cat, ok)
	}
}

func TestCategoryOfWrapped(t *testing.T) {
	inner := Credentialf("setgid", errors.New("operation not permitted"))
	wrapped := fmt.Errorf("credential transition: %w", inner)

	cat, ok := CategoryOf(wrapped)
	if !ok || cat != Credential {
		t.Fatalf("CategoryOf(wrapped) = %v, %v, want Credential, true", cat, ok)
	}
}

func TestCategoryOfPlainError(t *testing.T) {
	_, ok := CategoryOf(errors.New("plain"))
	if ok {
		t.Fatal("expected CategoryOf to report false for a plain error")
	}
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("EPERM")
	err := New(Io, "accept", inner)

	if !errors.Is(err, inner) {
		t.Error("errors.Is should see through to the wrapped error")
	}
}

func TestErrorStringWithoutInner(t *testing.T) {
	err := New(Auth, "empty username", nil)
	if err.Error() != "auth: empty username" {
		t.Errorf("Error() = %q, want 'auth: empty username'", err.Error())
	}
}
