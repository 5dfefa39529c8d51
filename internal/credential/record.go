// Package credential implements the ordered root-to-user credential
// transition (spec.md §4.3): UserRecord resolution, setgid/group
// initialization/setreuid sequencing with I2 re-verification, environment
// sanitization, and the secret-scrub contract (I3).
package credential

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// UserRecord is the {name, uid, primary-gid, home-dir, shell} tuple
// resolved from the OS account database (spec.md §3). Immutable once
// resolved.
type UserRecord struct {
	Name    string
	UID     int
	GID     int
	HomeDir string
	Shell   string
}

// passwdFilePath is the /etc/passwd equivalent consulted by Lookup,
// overridable in tests.
var passwdFilePath = "/etc/passwd"

// Lookup resolves username from /etc/passwd, the local account database the
// daemon runs against (mirroring the source's getpwnam_r, which this
// replaces — os/user's NSS-aware Lookup does not expose the login shell,
// which the environment-sanitization step requires).
func Lookup(username string) (*UserRecord, error) {
	f, err := os.Open(passwdFilePath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", passwdFilePath, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) < 7 || fields[0] != username {
			continue
		}

		uid, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("parse uid for %s: %w", username, err)
		}
		gid, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, fmt.Errorf("parse gid for %s: %w", username, err)
		}

		shell := fields[6]
		if shell == "" {
			shell = "/bin/sh"
		}

		return &UserRecord{
			Name:    fields[0],
			UID:     uid,
			GID:     gid,
			HomeDir: fields[5],
			Shell:   shell,
		}, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read /etc/passwd: %w", err)
	}

	return nil, fmt.Errorf("no passwd entry for %q", username)
}
