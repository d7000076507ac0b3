package unsafewx

import (
	"errors"
	"unsafe"
)

// Memory is the operating system's memory management as used by blocks.
// System is the implementation for the current platform; other
// implementations are mostly useful for observing how blocks use it.
type Memory interface {
	// PageSize returns the granularity of reservations and protections.
	PageSize() int
	// Reserve obtains a new zeroed, writeable region of exactly n bytes. n is
	// always a positive multiple of the page size.
	Reserve(n int) ([]byte, error)
	// Protect changes the protection of an entire region obtained from
	// Reserve.
	Protect(region []byte, m Mode) error
	// Release returns a region obtained from Reserve to the system.
	Release(region []byte) error
}

// System is the memory of the current platform.
var System Memory = sysMemory{}

// ErrUnsupportedOS is the error returned by System on operating systems
// without a W^X implementation.
var ErrUnsupportedOS = errors.New("wx: memory management not supported on this operating system")

// addrOf returns the address of the first byte of a region.
func addrOf(v []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(v)))
}

// at returns a pointer to byte i of v without any bounds check.
func at(v []byte, i int) *byte {
	return (*byte)(unsafe.Add(unsafe.Pointer(unsafe.SliceData(v)), i))
}
