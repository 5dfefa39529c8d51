// Package platform abstracts the OS-specific hooks the credential
// transitioner invokes at fixed points in the sequence (spec.md §4.3 steps
// 4 and 6), replacing the source's ifdef tree with one implementation per
// build target (spec.md §9).
package platform

// Capability is the set of platform-specific hooks the worker calls during
// a credential transition and at process start.
type Capability interface {
	// PostFork runs at the start of the re-exec'd broker, which the listener
	// has already placed in its own session (spec.md §4.6's platform
	// daemon-post-fork hook). The broker does not fork again to detach.
	PostFork() error

	// PostAuth runs after initgroups, before the auth adapter's
	// begin_session (spec.md §4.3 step 4): set login name where supported,
	// set audit-uid/session id and mask, set process credentials where
	// available, write the loginuid where the kernel exposes one.
	PostAuth(uid int) error

	// PostSession runs after begin_session (spec.md §4.3 step 6): verify
	// project/role membership where applicable, optional SELinux context
	// check. A portable default does nothing.
	PostSession(uid int) error
}

// Current returns the Capability implementation for this build target.
func Current() Capability {
	return current
}
