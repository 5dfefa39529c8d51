//go:build !linux

package platform

var current Capability = portableCapability{}

// portableCapability is the default no-op implementation for build targets
// without a dedicated Capability (spec.md §9: "a portable default does
// nothing").
type portableCapability struct{}

func (portableCapability) PostFork() error          { return nil }
func (portableCapability) PostAuth(uid int) error    { return nil }
func (portableCapability) PostSession(uid int) error { return nil }
