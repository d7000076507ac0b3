package listing

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"testing"

	"golang.org/x/arch/x86/x86asm"
)

func TestDecodeAMD64(t *testing.T) {
	code := []byte{0xb8, 0x80, 0x00, 0x00, 0x00, 0xc3}
	lines, err := Decode(code, "amd64")
	if err != nil {
		t.Fatal(err)
	}
	want := []Line{
		{Offset: 0, Bytes: code[:5], Text: "mov eax, 0x80"},
		{Offset: 5, Bytes: code[5:], Text: "ret"},
	}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, found %d: %v", len(want), len(lines), lines)
	}
	for i, l := range lines {
		if l.Offset != want[i].Offset || !bytes.Equal(l.Bytes, want[i].Bytes) || l.Text != want[i].Text {
			t.Errorf("line %d: expected %+v, found %+v", i, want[i], l)
		}
	}
}

func TestDecodeARM64(t *testing.T) {
	// ret
	code := []byte{0xc0, 0x03, 0x5f, 0xd6}
	lines, err := Decode(code, "arm64")
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 || lines[0].Text != "ret" {
		t.Errorf("unexpected listing %+v", lines)
	}
}

func TestDecodeTruncated(t *testing.T) {
	cases := []struct {
		arch string
		code []byte
		good int
		off  int
	}{
		// ret, then the first byte of mov eax, imm32
		{"amd64", []byte{0xc3, 0xb8}, 1, 1},
		// mov eax, imm32 cut off after the first immediate byte
		{"amd64", []byte{0xb8, 0x80}, 0, 0},
		// ret, then half an instruction
		{"arm64", []byte{0xc0, 0x03, 0x5f, 0xd6, 0x00, 0x00}, 1, 4},
	}
	for _, c := range cases {
		t.Run(fmt.Sprintf("%s/% x", c.arch, c.code), func(t *testing.T) {
			lines, err := Decode(c.code, c.arch)
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("expected decode error, got %v", err)
			}
			if len(lines) != c.good {
				t.Errorf("expected %d good lines, got %d", c.good, len(lines))
			}
			if !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, x86asm.ErrTruncated) {
				t.Errorf("expected truncation, got %v", err)
			}
			if de.Offset != c.off {
				t.Errorf("wrong error offset: wanted %d, have %d", c.off, de.Offset)
			}
		})
	}
}

func TestDecodeUnknownArch(t *testing.T) {
	if _, err := Decode([]byte{0}, "pdp11"); !errors.Is(err, ErrUnknownArch) {
		t.Errorf("expected unknown architecture, got %v", err)
	}
}

func TestFprint(t *testing.T) {
	lines, err := Decode([]byte{0xb8, 0x80, 0x00, 0x00, 0x00, 0xc3}, "amd64")
	if err != nil {
		t.Fatal(err)
	}
	var w bytes.Buffer
	if err := Fprint(&w, lines); err != nil {
		t.Fatal(err)
	}
	want := "0000  b880000000               mov eax, 0x80\n" +
		"0005  c3                       ret\n"
	if w.String() != want {
		t.Errorf("unexpected listing:\n%s\nwanted:\n%s", w.String(), want)
	}
}
