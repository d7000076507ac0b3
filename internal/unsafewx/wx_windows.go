package unsafewx

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

type sysMemory struct{}

func (sysMemory) PageSize() int {
	return windows.Getpagesize()
}

func (sysMemory) Reserve(n int) ([]byte, error) {
	p, err := windows.VirtualAlloc(0, uintptr(n), windows.MEM_RESERVE|windows.MEM_COMMIT, windows.PAGE_READWRITE)
	if err != nil {
		return nil, err
	}
	// VirtualAlloc memory is outside the Go heap, so building the pointer with
	// unsafe.Add from nil is safe and keeps vet quiet.
	return unsafe.Slice((*byte)(unsafe.Add(nil, p)), n), nil
}

func (sysMemory) Protect(region []byte, m Mode) error {
	var old uint32
	// MSDN says we should call FlushInstructionCache to ensure that the CPU
	// sees the new executable memory, but sys/windows doesn't provide that
	// function. SetMode synchronizes the cache itself where it matters.
	return windows.VirtualProtect(addrOf(region), uintptr(len(region)), prot(m), &old)
}

func (sysMemory) Release(region []byte) error {
	// MEM_RELEASE requires a size of zero and frees the whole reservation.
	return windows.VirtualFree(addrOf(region), 0, windows.MEM_RELEASE)
}

func prot(m Mode) uint32 {
	if m == Executable {
		return windows.PAGE_EXECUTE_READ
	}
	return windows.PAGE_READWRITE
}
