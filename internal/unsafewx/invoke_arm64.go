package unsafewx

// callEntry calls the code at entry with arg in X0 and returns X0.
// Implemented in invoke_arm64.s.
func callEntry(entry, arg uintptr) uintptr

// flushCode cleans the data cache and invalidates the instruction cache for
// n bytes starting at addr. Implemented in invoke_arm64.s.
func flushCode(addr, n uintptr)

// syncInstructionCache makes freshly written code visible to instruction
// fetch. arm64 does not keep the instruction cache coherent with data writes.
func syncInstructionCache(code []byte) {
	if len(code) == 0 {
		return
	}
	flushCode(addrOf(code), uintptr(len(code)))
}
