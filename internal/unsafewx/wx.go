// Package unsafewx provides management routines for memory that is either
// writeable or executable.
//
// W^X memory as implemented in package unsafewx is never writeable and
// executable at the same time. A Block starts out writeable; calling or
// obtaining a function from it switches it to executable, and writing to it
// again switches it back. Every switch is a protection change on the whole
// block, so the mode reported by Block.Mode always matches what the operating
// system enforces.
//
// The "unsafe" part of unsafewx is there because using this package is
// inherently unsafe, as it lets you execute arbitrary code with absolutely no
// safety checks. Despite this, using unsafewx typically doesn't require that
// you import unsafe directly. "unsafewx" is a mnemonic. Be mindful.
//
package unsafewx

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

// Mode is the protection state of a block.
type Mode uint8

const (
	// Writable blocks can be read and written but not executed.
	Writable Mode = iota
	// Executable blocks can be read and executed but not written.
	Executable
)

func (m Mode) String() string {
	switch m {
	case Writable:
		return "writable"
	case Executable:
		return "executable"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// A Block represents a block of writeable or executable memory, or W^X.
//
// Blocks must not be copied. Pass *Block to hand the memory to a new owner.
type Block struct {
	_    noCopy
	mem  Memory
	v    []byte // whole region, len == cap == capacity; nil once closed
	n    int    // bytes written
	mode Mode
}

// MustAlloc is like Alloc but panics if the block could not be allocated.
func MustAlloc(n int) *Block {
	b, err := Alloc(n)
	if err != nil {
		panic(err)
	}
	return b
}

// Alloc allocates a block of W^X memory with room for at least n bytes from
// the system's memory. The capacity is n rounded up to the page size, or one
// page if n is zero. The new block is writeable. Panics if n < 0.
func Alloc(n int) (*Block, error) {
	return AllocWith(System, n)
}

// AllocWith is like Alloc but obtains the block's memory from mem.
func AllocWith(mem Memory, n int) (*Block, error) {
	if n < 0 {
		panic(fmt.Errorf("wx: cannot allocate %d bytes: negative values are illegal", n))
	}
	ps := mem.PageSize()
	c := (n + ps - 1) / ps * ps
	if c == 0 {
		c = ps
	}
	logv("allocating", zap.Int("len", n), zap.Int("cap", c))
	v, err := mem.Reserve(c)
	if err != nil {
		logv("error during alloc", zap.Error(err))
		return nil, xerrors.Errorf("wx: allocating %d bytes: %w", c, err)
	}
	logv("obtained", zap.Int("cap", c), zap.Uintptr("addr", addrOf(v)))
	b := &Block{mem: mem, v: v[:c:c], mode: Writable}
	runtime.SetFinalizer(b, (*Block).finalize)
	return b, nil
}

// IsValid returns true if the block refers to committed memory.
func (b *Block) IsValid() bool {
	return b != nil && b.v != nil
}

func (b *Block) mustBeValid() {
	if !b.IsValid() {
		panic("wx: use of invalid block")
	}
}

// Mode returns the block's current protection. Panics if the block is not
// valid.
func (b *Block) Mode() Mode {
	b.mustBeValid()
	return b.mode
}

// Available returns the number of bytes that can still be written to the
// block. The final byte of every block is a guard and never counts as
// available. Panics if the block is not valid.
func (b *Block) Available() int {
	b.mustBeValid()
	return len(b.v) - 1 - b.n
}

// Len returns the number of bytes written in the block. Panics if the block is
// not valid.
func (b *Block) Len() int {
	b.mustBeValid()
	return b.n
}

// Cap returns the capacity of the block in bytes. It is a multiple of the page
// size and never changes. Panics if the block is not valid.
func (b *Block) Cap() int {
	b.mustBeValid()
	return len(b.v)
}

// Cursor returns the current write-to position in the block. This may be
// useful to keep track of the addresses of function pointers when writing
// multiple functions to the same block. Panics if the block is not valid.
func (b *Block) Cursor() uintptr {
	b.mustBeValid()
	return uintptr(b.n)
}

// SetMode changes the block's protection to m. It does nothing if the block is
// already in mode m. Panics if the block is not valid or if the operating
// system refuses the change; in the latter case the block keeps its old mode.
func (b *Block) SetMode(m Mode) {
	b.mustBeValid()
	if b.mode == m {
		return
	}
	if m != Writable && m != Executable {
		panic(fmt.Errorf("wx: invalid mode %v", m))
	}
	logv("changing protection", zap.Uintptr("addr", addrOf(b.v)), zap.Int("len", b.n), zap.Int("cap", len(b.v)), zap.Stringer("mode", m))
	if err := b.mem.Protect(b.v, m); err != nil {
		logv("error during protect", zap.Error(err))
		panic(xerrors.Errorf("wx: marking block %s: %w", m, err))
	}
	if m == Executable {
		syncInstructionCache(b.v)
	}
	b.mode = m
}

// Write writes bytes into the block, making it writeable first if needed. If
// p does not fit in the available space, Write writes nothing and returns
// ErrCapacityExceeded. Panics if the block is not valid.
func (b *Block) Write(p []byte) (n int, err error) {
	b.mustBeValid()
	if len(p) > b.Available() {
		return 0, ErrCapacityExceeded
	}
	if len(p) == 0 {
		return 0, nil
	}
	b.SetMode(Writable)
	copy(b.v[b.n:], p)
	b.n += len(p)
	return len(p), nil
}

// WriteByte appends a single byte to the block.
func (b *Block) WriteByte(c byte) error {
	_, err := b.Write([]byte{c})
	return err
}

// WriteUint16 appends v to the block in the given byte order.
func (b *Block) WriteUint16(order binary.ByteOrder, v uint16) error {
	var p [2]byte
	order.PutUint16(p[:], v)
	_, err := b.Write(p[:])
	return err
}

// WriteUint32 appends v to the block in the given byte order.
func (b *Block) WriteUint32(order binary.ByteOrder, v uint32) error {
	var p [4]byte
	order.PutUint32(p[:], v)
	_, err := b.Write(p[:])
	return err
}

// WriteUint64 appends v to the block in the given byte order.
func (b *Block) WriteUint64(order binary.ByteOrder, v uint64) error {
	var p [8]byte
	order.PutUint64(p[:], v)
	_, err := b.Write(p[:])
	return err
}

// Peek returns the byte at offset i in the block without checking i against
// the block's length or capacity. Reading outside the block is undefined.
func (b *Block) Peek(i int) byte {
	return *at(b.v, i)
}

// Poke overwrites the byte at offset i in the block, making the block
// writeable first if needed. It does not check i against the block's length
// or capacity and does not change Len. Writing outside the block is
// undefined.
func (b *Block) Poke(i int, c byte) {
	b.SetMode(Writable)
	*at(b.v, i) = c
}

// ByteAt is like Peek but returns ErrOutOfRange if i is not inside the block.
func (b *Block) ByteAt(i int) (byte, error) {
	b.mustBeValid()
	if i < 0 || i >= len(b.v) {
		return 0, xerrors.Errorf("wx: byte %d of %d: %w", i, len(b.v), ErrOutOfRange)
	}
	return b.v[i], nil
}

// SetByteAt is like Poke but returns ErrOutOfRange if i is not inside the
// block.
func (b *Block) SetByteAt(i int, c byte) error {
	b.mustBeValid()
	if i < 0 || i >= len(b.v) {
		return xerrors.Errorf("wx: byte %d of %d: %w", i, len(b.v), ErrOutOfRange)
	}
	b.SetMode(Writable)
	b.v[i] = c
	return nil
}

// Bytes returns a copy of the written contents of the block. Panics if the
// block is not valid.
func (b *Block) Bytes() []byte {
	b.mustBeValid()
	return append([]byte(nil), b.v[:b.n]...)
}

// WriteTo copies out the written contents of the block. This may call w.Write
// multiple times. Panics if the block is not valid.
func (b *Block) WriteTo(w io.Writer) (n int64, err error) {
	const ps = 4096
	b.mustBeValid()
	// Hand out copies so that w cannot retain a view of the block.
	p := make([]byte, ps)
	for o := 0; o < b.n; o += ps {
		k := copy(p, b.v[o:b.n])
		wn, err := w.Write(p[:k])
		n += int64(wn)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// Close releases the block's memory. Following this, b.IsValid returns false
// and any other use of the block panics. Closing a block that is nil or
// already closed returns ErrInvalidClose. Panics if the operating system
// fails to release the memory.
func (b *Block) Close() error {
	if !b.IsValid() {
		return ErrInvalidClose
	}
	runtime.SetFinalizer(b, nil)
	b.release()
	return nil
}

func (b *Block) finalize() {
	if b.IsValid() {
		logv("releasing unreachable block", zap.Uintptr("addr", addrOf(b.v)))
		b.release()
	}
}

func (b *Block) release() {
	logv("freeing", zap.Uintptr("addr", addrOf(b.v)), zap.Int("len", b.n), zap.Int("cap", len(b.v)))
	if err := b.mem.Release(b.v); err != nil {
		logv("error during free", zap.Error(err))
		panic(xerrors.Errorf("wx: releasing block: %w", err))
	}
	b.v = nil
	b.n = 0
}

// ErrCapacityExceeded is the error returned when attempting to write more data
// than a block can hold.
var ErrCapacityExceeded = errors.New("wx: write exceeded block availability")

// ErrInvalidClose is the error returned when attempting to close a block that
// is nil or already closed.
var ErrInvalidClose = errors.New("wx: close on invalid block")

// ErrOutOfRange is the error returned by checked byte access outside a block.
var ErrOutOfRange = errors.New("wx: offset out of range")

// Verbose, if non-nil, is used to log every memory operation at debug level.
var Verbose *zap.Logger

func logv(msg string, fields ...zap.Field) {
	if Verbose != nil {
		Verbose.Debug(msg, fields...)
	}
}

// noCopy may be embedded into structs which must not be copied after first
// use. It is recognized by go vet's copylocks check.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
