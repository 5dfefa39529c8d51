//go:build linux

package procname

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// set uses PR_SET_NAME to retitle the kernel's view of this thread (visible
// in /proc/pid/comm and most process listings, truncated to 15 bytes plus a
// NUL). Go does not expose a portable way to rewrite argv[0] in place, so
// this is the idiomatic approximation used on Linux.
func set(title string) {
	if len(title) > 15 {
		title = title[:15]
	}
	buf := append([]byte(title), 0)
	_ = unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(&buf[0])), 0, 0, 0)
}
