//go:build linux

package platform

import (
	"fmt"
	"os"
	"strconv"
)

var current Capability = linuxCapability{}

type linuxCapability struct{}

// PostFork has nothing Linux-specific to do; session detachment is handled
// directly by internal/listener via SysProcAttr.Setsid.
func (linuxCapability) PostFork() error {
	return nil
}

func (linuxCapability) PostAuth(uid int) error {
	return writeLoginuid(uid)
}

func (linuxCapability) PostSession(uid int) error {
	return nil
}

// writeLoginuid records the audit loginuid for the session, the Linux
// analogue of the source's audit-session-id hook (spec.md §4.3 step 4).
// Writable only once per login session; a second write by a later process
// in the same session returns EPERM. A missing file and permission errors
// on open or write are silently ignored rather than reported as a
// CredentialError, since not every kernel/container exposes the file
// writably.
func writeLoginuid(uid int) error {
	f, err := os.OpenFile("/proc/self/loginuid", os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		if os.IsNotExist(err) || os.IsPermission(err) {
			return nil
		}
		return fmt.Errorf("open /proc/self/loginuid: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(strconv.Itoa(uid)); err != nil {
		if os.IsPermission(err) {
			return nil
		}
		return fmt.Errorf("write /proc/self/loginuid: %w", err)
	}
	return nil
}
