package credential

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// SetGID sets both real and effective gid to rec.GID and verifies the
// change took effect (spec.md §4.3 step 2).
func SetGID(rec *UserRecord) error {
	if err := unix.Setresgid(rec.GID, rec.GID, rec.GID); err != nil {
		return fmt.Errorf("setgid(%d): %w", rec.GID, err)
	}

	rgid, egid, _ := unix.Getresgid()
	if rgid != rec.GID || egid != rec.GID {
		return fmt.Errorf("gid not correctly set: real=%d effective=%d, want %d", rgid, egid, rec.GID)
	}
	return nil
}

// DropRealUID performs the post-signal setreuid(user,-1): drops the real
// uid to rec.UID while keeping the effective uid root, used for
// resource-limit accounting of subsequent forks (spec.md §4.3 step 8).
func DropRealUID(rec *UserRecord) error {
	if err := unix.Setreuid(rec.UID, -1); err != nil {
		return fmt.Errorf("setreuid(%d, -1): %w", rec.UID, err)
	}
	return nil
}

// RestoreRoot sets the real uid back to root with setreuid(0, -1), undoing
// DropRealUID (spec.md §4.4 Terminating). The effective uid, which
// DropRealUID left as root, is not changed.
func RestoreRoot() error {
	if err := unix.Setreuid(0, -1); err != nil {
		return fmt.Errorf("setreuid(0, -1): %w", err)
	}
	return nil
}

// VerifyChild re-reads a forked command child's real/effective uid and gid
// from /proc/<pid>/status right after exec.Cmd.Start returns and confirms
// they equal wantUID/wantGID, the check invariant I2 requires for command
// children. Getresuid/Getresgid only ever report the calling process's own
// credentials, so a child spawned through exec.Cmd's SysProcAttr.Credential
// can only be verified this way, by reading back the kernel's own record of
// the child rather than re-deriving it from the request we made.
func VerifyChild(pid, wantUID, wantGID int) error {
	uids, gids, err := childCredentials(pid)
	if err != nil {
		return fmt.Errorf("reading /proc/%d/status: %w", pid, err)
	}

	if uids[0] != wantUID || uids[1] != wantUID || gids[0] != wantGID || gids[1] != wantGID {
		return fmt.Errorf(
			"child %d uid/gid not correctly set: uid(real=%d,effective=%d) gid(real=%d,effective=%d), want uid=%d gid=%d",
			pid, uids[0], uids[1], gids[0], gids[1], wantUID, wantGID,
		)
	}
	return nil
}

// childCredentials parses the Uid:/Gid: lines of /proc/<pid>/status, each of
// which carries four tab-separated fields: real, effective, saved-set, and
// filesystem. Only real and effective are returned.
func childCredentials(pid int) (uids [2]int, gids [2]int, err error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return uids, gids, err
	}
	defer f.Close()

	var haveUID, haveGID bool
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "Uid:"):
			if uids, err = parseIDLine(line); err != nil {
				return uids, gids, err
			}
			haveUID = true
		case strings.HasPrefix(line, "Gid:"):
			if gids, err = parseIDLine(line); err != nil {
				return uids, gids, err
			}
			haveGID = true
		}
		if haveUID && haveGID {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return uids, gids, err
	}
	if !haveUID || !haveGID {
		return uids, gids, fmt.Errorf("missing Uid/Gid line")
	}
	return uids, gids, nil
}

func parseIDLine(line string) ([2]int, error) {
	var out [2]int
	parts := strings.Fields(line)
	if len(parts) < 3 {
		return out, fmt.Errorf("malformed line %q", line)
	}
	real, err := strconv.Atoi(parts[1])
	if err != nil {
		return out, fmt.Errorf("malformed line %q: %w", line, err)
	}
	effective, err := strconv.Atoi(parts[2])
	if err != nil {
		return out, fmt.Errorf("malformed line %q: %w", line, err)
	}
	out[0], out[1] = real, effective
	return out, nil
}
