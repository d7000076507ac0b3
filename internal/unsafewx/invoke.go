package unsafewx

import (
	"errors"
	"reflect"
	"runtime"
	"unsafe"
)

// A Func calls machine code in a block using the platform's C calling
// convention: arg is passed in the first integer argument register (RDI on
// System V amd64, RCX on Windows amd64, X0 on arm64), and the result is the
// full return register (RAX or X0). Code that returns a narrower value, e.g.
// by writing EAX, must make sure the rest of the register is what the caller
// should see.
//
// The code runs on the calling goroutine's stack, which may be small. It
// should be a leaf routine that uses little stack and does not call back into
// Go.
type Func func(arg uintptr) uintptr

// Callable makes the block executable and returns a function that calls the
// code at the start of the block. The caller is responsible for ensuring that
// the block contains a complete instruction sequence for the host CPU that
// follows the convention described by Func; nothing can check this, and
// calling anything else is undefined. Writes between calls are allowed; each
// call makes the block executable again. The function keeps the block
// reachable but must not be called after the block is closed. Panics if the
// block is not valid.
func (b *Block) Callable() Func {
	b.SetMode(Executable)
	return b.Call
}

// Call makes the block executable and calls the code at its start with arg.
// It has the same preconditions as Callable.
func (b *Block) Call(arg uintptr) uintptr {
	b.SetMode(Executable)
	return b.call(0, arg)
}

// Run is Call with a zero argument.
func (b *Block) Run() uintptr {
	return b.Call(0)
}

func (b *Block) call(off uintptr, arg uintptr) uintptr {
	if !b.IsValid() {
		panic("wx: call into invalid block")
	}
	if b.mode != Executable {
		panic("wx: call into writeable memory")
	}
	r := callEntry(addrOf(b.v)+off, arg)
	runtime.KeepAlive(b)
	return r
}

// FuncAt makes the block executable and returns a function that executes the
// code at the given address in the block. The function has the type given in
// the typ parameter and uses Go's internal calling convention for the
// current release, not the convention described by Func. The caller is
// responsible for ensuring that the address points directly to executable
// code that is ABI-compatible with the desired function type, that the block
// is not closed while the function is executing, and that nothing writes to
// the block while the function may still be called. Panics if the block is
// invalid, if typ is not a function type, or if addr is outside the written
// part of the block (but not if the function leaves the block's bounds; that
// will result in an unrecoverable fault).
func (b *Block) FuncAt(addr uintptr, typ reflect.Type) interface{} {
	if !b.IsValid() {
		panic("wx: attempted to create function without committed memory")
	}
	if typ.Kind() != reflect.Func {
		panic("wx: attempted to create function of non-function type " + typ.String())
	}
	if addr >= uintptr(b.n) {
		panic("wx: function pointer out of bounds")
	}
	b.SetMode(Executable)
	// Create a zero value of the function type, then set its pointer unsafely.
	// KEEP IN SYNC WITH reflect.Value:
	// https://github.com/golang/go/blob/master/src/reflect/value.go
	type rvalue struct {
		rtype unsafe.Pointer
		ptr   unsafe.Pointer
		flag  uintptr
	}
	z := reflect.Zero(typ)
	// z.Interface() uses the pointer we set here as the function value
	// because in gc, function values (i.e., uses of functions other than by
	// static, package-level names) are pointers to pointers to code. See
	// https://golang.org/s/go11func.
	// The code pointer must be the first word of the function value. The
	// block rides along in the closure context so that the finalizer cannot
	// release the memory while the function is reachable.
	x := &struct {
		code uintptr
		b    *Block
	}{addrOf(b.v) + addr, b}
	(*rvalue)(unsafe.Pointer(&z)).ptr = unsafe.Pointer(x)
	return z.Interface()
}

// ErrUnsupportedArch is the value of panics caused by calling into a block on
// an architecture without a call trampoline.
var ErrUnsupportedArch = errors.New("wx: calling machine code not supported on this architecture")
