package credential

import (
	"os"
	"testing"
)

func osGetenv(name string) string { return os.Getenv(name) }

func TestBlocklistNames(t *testing.T) {
	names := []string{"SHELL", "HOME", "LOGNAME", "MAIL", "CDPATH", "IFS", "PATH"}
	for _, name := range names {
		if !blocked(name) {
			t.Errorf("blocked(%q) = false, want true", name)
		}
	}
}

func TestBlocklistLDPrefix(t *testing.T) {
	cases := []string{"LD_LIBRARY_PATH", "LD_PRELOAD", "LD_"}
	for _, name := range cases {
		if !blocked(name) {
			t.Errorf("blocked(%q) = false, want true", name)
		}
	}
}

func TestBlocklistAllowsOtherNames(t *testing.T) {
	cases := []string{"EDITOR", "LANG", "TERM", "MYAPP_CONFIG"}
	for _, name := range cases {
		if blocked(name) {
			t.Errorf("blocked(%q) = true, want false", name)
		}
	}
}

func TestSanitizePreservesPathAndSetsIdentity(t *testing.T) {
	t.Setenv("PATH", "/usr/bin:/bin")
	t.Setenv("SOME_LEFTOVER", "should-be-wiped")

	rec := &UserRecord{Name: "alice", UID: 1000, GID: 1000, HomeDir: "/nonexistent-test-home", Shell: "/bin/zsh"}
	Sanitize(rec, map[string]string{"CUSTOM_VAR": "value", "PATH": "/should/not/apply", "LD_PRELOAD": "evil.so"})

	if got := osGetenv("PATH"); got != "/usr/bin:/bin" {
		t.Errorf("PATH = %q, want preserved '/usr/bin:/bin'", got)
	}
	if got := osGetenv("HOME"); got != rec.HomeDir {
		t.Errorf("HOME = %q, want %q", got, rec.HomeDir)
	}
	if got := osGetenv("USER"); got != rec.Name {
		t.Errorf("USER = %q, want %q", got, rec.Name)
	}
	if got := osGetenv("SHELL"); got != rec.Shell {
		t.Errorf("SHELL = %q, want %q", got, rec.Shell)
	}
	if got := osGetenv("CUSTOM_VAR"); got != "value" {
		t.Errorf("CUSTOM_VAR = %q, want 'value'", got)
	}
	if got := osGetenv("SOME_LEFTOVER"); got != "" {
		t.Errorf("SOME_LEFTOVER = %q, want wiped", got)
	}
	if got := osGetenv("LD_PRELOAD"); got != "" {
		t.Errorf("LD_PRELOAD = %q, want blocked", got)
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	t.Setenv("PATH", "/usr/bin")

	rec := &UserRecord{Name: "bob", UID: 1001, GID: 1001, HomeDir: "/nonexistent-test-home-2", Shell: "/bin/bash"}
	adapterEnv := map[string]string{"CUSTOM_VAR": "value"}

	Sanitize(rec, adapterEnv)
	first := map[string]string{
		"PATH": osGetenv("PATH"), "HOME": osGetenv("HOME"), "CUSTOM_VAR": osGetenv("CUSTOM_VAR"),
	}

	Sanitize(rec, adapterEnv)
	second := map[string]string{
		"PATH": osGetenv("PATH"), "HOME": osGetenv("HOME"), "CUSTOM_VAR": osGetenv("CUSTOM_VAR"),
	}

	for k := range first {
		if first[k] != second[k] {
			t.Errorf("Sanitize not idempotent for %s: %q then %q", k, first[k], second[k])
		}
	}
}

func TestScrubZeroesBuffer(t *testing.T) {
	buf := []byte("hunter2")
	Scrub(buf)
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("buf[%d] = %d, want 0", i, b)
		}
	}
}
