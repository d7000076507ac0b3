//go:build !unix && !windows

package unsafewx

import "os"

type sysMemory struct{}

func (sysMemory) PageSize() int { return os.Getpagesize() }

func (sysMemory) Reserve(int) ([]byte, error) { return nil, ErrUnsupportedOS }

func (sysMemory) Protect([]byte, Mode) error { return ErrUnsupportedOS }

func (sysMemory) Release([]byte) error { return ErrUnsupportedOS }
