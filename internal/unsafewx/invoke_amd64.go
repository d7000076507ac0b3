package unsafewx

// callEntry calls the code at entry with arg in both RDI and RCX, so that it
// follows the System V and Windows conventions at once, and returns RAX.
// Implemented in invoke_amd64.s.
func callEntry(entry, arg uintptr) uintptr

// syncInstructionCache does nothing on amd64, where instruction fetch is
// coherent with data writes.
func syncInstructionCache(code []byte) {}
