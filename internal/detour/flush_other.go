//go:build !arm64

package detour

// flushICache is a no-op where instruction and data caches are coherent.
func flushICache(_, _ uintptr) {}
