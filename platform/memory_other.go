//go:build !linux

package platform

// totalMemory is only implemented on Linux.
func totalMemory() uint64 { return 0 }
