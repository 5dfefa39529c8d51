package credential

import (
	"os"
	"strings"
)

// envBlocklist is the fixed set of names an auth adapter's export_environ
// may never override (spec.md §4.2): PATH is included deliberately, so a
// back end has no mechanism to change the PATH copied in below (spec.md
// §9/§7's open-question resolution).
var envBlocklist = map[string]bool{
	"SHELL":   true,
	"HOME":    true,
	"LOGNAME": true,
	"MAIL":    true,
	"CDPATH":  true,
	"IFS":     true,
	"PATH":    true,
}

func blocked(name string) bool {
	return envBlocklist[name] || strings.HasPrefix(name, "LD_")
}

// Environ builds the sanitized "KEY=VALUE" environment for rec's session
// (spec.md §4.3): the pre-existing PATH, HOME/USER/LOGNAME/LOGIN/SHELL from
// rec, then adapterEnviron minus the blocklist. This is what a command
// child's exec.Cmd.Env should be set to — a process started via os/exec
// never shares the current process's live environment with its child, so
// there is nothing to wipe in the child; the parent simply hands the child
// its complete environment at exec time.
func Environ(rec *UserRecord, adapterEnviron map[string]string) []string {
	env := []string{
		"HOME=" + rec.HomeDir,
		"USER=" + rec.Name,
		"LOGNAME=" + rec.Name,
		"LOGIN=" + rec.Name,
		"SHELL=" + rec.Shell,
		"PATH=" + os.Getenv("PATH"),
	}

	for name, value := range adapterEnviron {
		if blocked(name) {
			continue
		}
		env = append(env, name+"="+value)
	}

	return env
}

// Sanitize erases the calling process's own environment and rebuilds it per
// Environ, then changes directory to rec's home (non-fatal if that fails).
// This is the direct translation of spec.md §4.3's environment-sanitization
// step for a process that inherited its predecessor's environment via a
// true fork rather than via exec.Cmd.Env; netlogind's command children are
// spawned through os/exec and so receive their environment from Environ
// directly (see internal/worker), never through this mutating path.
// Running Sanitize twice on the same process yields the same environment
// (spec.md §8's idempotence law), since each call starts from a wiped slate
// and PATH is read before the wipe but reapplied identically.
func Sanitize(rec *UserRecord, adapterEnviron map[string]string) {
	env := Environ(rec, adapterEnviron)

	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		os.Unsetenv(name)
	}

	for _, kv := range env {
		name, value, _ := strings.Cut(kv, "=")
		os.Setenv(name, value)
	}

	_ = os.Chdir(rec.HomeDir)
}
