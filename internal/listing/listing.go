// Package listing decodes machine code into a human-readable listing, one
// instruction per line. It is meant for inspecting what has been written to
// a block before running it.
package listing

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"
	"golang.org/x/xerrors"
)

// A Line is one decoded instruction.
type Line struct {
	// Offset is the position of the instruction's first byte in the code.
	Offset int
	// Bytes is the encoded instruction.
	Bytes []byte
	// Text is the instruction in the architecture's usual assembly syntax,
	// Intel for amd64 and ARM for arm64.
	Text string
}

// ErrUnknownArch is the error returned when decoding for an architecture
// that has no decoder.
var ErrUnknownArch = errors.New("listing: unknown architecture")

// DecodeError describes code that could not be decoded.
type DecodeError struct {
	Offset int
	Err    error
}

func (err *DecodeError) Error() string {
	return fmt.Sprintf("listing: decoding at offset %#x: %v", err.Offset, err.Err)
}

func (err *DecodeError) Unwrap() error {
	return err.Err
}

// Decode decodes all of code for the architecture named by arch, using
// GOARCH names. It stops at the first byte sequence that does not decode,
// returning the lines decoded so far and a *DecodeError.
func Decode(code []byte, arch string) ([]Line, error) {
	switch arch {
	case "amd64":
		return decodeX86(code, 64)
	case "386":
		return decodeX86(code, 32)
	case "arm64":
		return decodeARM64(code)
	default:
		return nil, xerrors.Errorf("%q: %w", arch, ErrUnknownArch)
	}
}

func decodeX86(code []byte, mode int) ([]Line, error) {
	var lines []Line
	for o := 0; o < len(code); {
		inst, err := x86asm.Decode(code[o:], mode)
		if err != nil {
			return lines, &DecodeError{Offset: o, Err: err}
		}
		if inst.Op == 0 {
			// x86asm reports a lone prefix byte when the instruction runs
			// past the end of the code.
			return lines, &DecodeError{Offset: o, Err: x86asm.ErrTruncated}
		}
		lines = append(lines, Line{
			Offset: o,
			Bytes:  code[o : o+inst.Len],
			Text:   x86asm.IntelSyntax(inst, uint64(o), nil),
		})
		o += inst.Len
	}
	return lines, nil
}

func decodeARM64(code []byte) ([]Line, error) {
	var lines []Line
	for o := 0; o < len(code); o += 4 {
		if len(code)-o < 4 {
			return lines, &DecodeError{Offset: o, Err: io.ErrUnexpectedEOF}
		}
		inst, err := arm64asm.Decode(code[o : o+4])
		if err != nil {
			return lines, &DecodeError{Offset: o, Err: err}
		}
		lines = append(lines, Line{
			Offset: o,
			Bytes:  code[o : o+4],
			Text:   arm64asm.GNUSyntax(inst),
		})
	}
	return lines, nil
}

// Fprint writes lines to w as offset, hex bytes, and text, one per line.
func Fprint(w io.Writer, lines []Line) error {
	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "%04x  %-24x %s\n", l.Offset, l.Bytes, l.Text); err != nil {
			return err
		}
	}
	return nil
}
