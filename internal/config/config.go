// Package config loads the settings of the codebuf command.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
	"github.com/xyproto/env/v2"
	"golang.org/x/xerrors"
)

// Environment variables that override file settings.
const (
	EnvCapacity = "CODEBUF_CAPACITY"
	EnvArg      = "CODEBUF_ARG"
	EnvVerbose  = "CODEBUF_VERBOSE"
	EnvListing  = "CODEBUF_LISTING"
)

// Config describes a program to load into a block and how to run it.
type Config struct {
	// Capacity is the requested block size in bytes.
	Capacity int `toml:"capacity"`
	// Code is the machine code to run, one byte per element.
	Code []int `toml:"code"`
	// Arg is passed to the code as its only argument.
	Arg uint64 `toml:"arg"`
	// Verbose enables debug logging of memory operations.
	Verbose bool `toml:"verbose"`
	// Listing prints a disassembly of the code before running it.
	Listing bool `toml:"listing"`
}

// Default returns a config that runs "mov eax, 0x80; ret" in a one-page
// block.
func Default() Config {
	return Config{
		Capacity: 4096,
		Code:     []int{0xb8, 0x80, 0x00, 0x00, 0x00, 0xc3},
	}
}

// Load reads a config from a TOML file. Settings missing from the file keep
// their defaults. Unknown settings are an error.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, xerrors.Errorf("failed to read config file: %w", err)
	}
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, xerrors.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from the environment.
func (c *Config) ApplyEnv() error {
	if env.Has(EnvCapacity) {
		s := env.Str(EnvCapacity)
		v, err := strconv.Atoi(s)
		if err != nil {
			return xerrors.Errorf("bad %s %q: %w", EnvCapacity, s, err)
		}
		c.Capacity = v
	}
	if env.Has(EnvArg) {
		s := env.Str(EnvArg)
		v, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return xerrors.Errorf("bad %s %q: %w", EnvArg, s, err)
		}
		c.Arg = v
	}
	if env.Has(EnvVerbose) {
		c.Verbose = env.Bool(EnvVerbose)
	}
	if env.Has(EnvListing) {
		c.Listing = env.Bool(EnvListing)
	}
	return nil
}

// ErrInvalid is wrapped by all validation errors.
var ErrInvalid = errors.New("invalid config")

// Program returns the code as bytes.
func (c Config) Program() ([]byte, error) {
	p := make([]byte, len(c.Code))
	for i, v := range c.Code {
		if v < 0 || v > 0xff {
			return nil, xerrors.Errorf("code[%d] = %d is not a byte: %w", i, v, ErrInvalid)
		}
		p[i] = byte(v)
	}
	return p, nil
}

// Validate checks that the program is well-formed and fits in the requested
// capacity. The last byte of a block is never written, so the program must be
// strictly shorter than the capacity.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return xerrors.Errorf("capacity %d: %w", c.Capacity, ErrInvalid)
	}
	if len(c.Code) == 0 {
		return xerrors.Errorf("no code: %w", ErrInvalid)
	}
	if len(c.Code) >= c.Capacity {
		return xerrors.Errorf("%d bytes of code do not fit in capacity %d: %w", len(c.Code), c.Capacity, ErrInvalid)
	}
	if _, err := c.Program(); err != nil {
		return err
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("capacity=%d code=%d bytes arg=%#x", c.Capacity, len(c.Code), c.Arg)
}
