//go:build !amd64 && !arm64

package unsafewx

func callEntry(entry, arg uintptr) uintptr {
	panic(ErrUnsupportedArch)
}

func syncInstructionCache(code []byte) {}
