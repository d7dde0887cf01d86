package detour

// clearCache cleans the data cache and invalidates the instruction cache
// for [start, end) one line at a time.
//
//go:noescape
func clearCache(start, end, line uintptr)

// flushICache makes freshly written code visible to instruction fetch.
func flushICache(addr, n uintptr) {
	if n == 0 {
		return
	}
	clearCache(addr, addr+n, 64)
}
