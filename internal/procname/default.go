//go:build !linux

package procname

func set(title string) {}
