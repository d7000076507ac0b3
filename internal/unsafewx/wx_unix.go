//go:build unix

package unsafewx

import (
	"golang.org/x/sys/unix"
)

type sysMemory struct{}

func (sysMemory) PageSize() int {
	return unix.Getpagesize()
}

func (sysMemory) Reserve(n int) ([]byte, error) {
	// It is crucial that we do not try to mmap zero bytes, because Mmap uses
	// a special region for zero-byte allocations, and we don't want to change
	// its protections.
	if n <= 0 {
		panic("wx: reserve of empty region")
	}
	return unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
}

func (sysMemory) Protect(region []byte, m Mode) error {
	return unix.Mprotect(region, prot(m))
}

func (sysMemory) Release(region []byte) error {
	// Munmap looks the mapping up by the last byte of the slice, so region
	// must span the whole mapping.
	return unix.Munmap(region)
}

func prot(m Mode) int {
	if m == Executable {
		return unix.PROT_READ | unix.PROT_EXEC
	}
	return unix.PROT_READ | unix.PROT_WRITE
}
