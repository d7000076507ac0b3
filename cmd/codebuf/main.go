// Command codebuf writes a machine code program into W^X memory, runs it, and
// prints the value it returns.
//
// Usage:
//
//	codebuf [config.toml]
//
// Without a config file, codebuf runs "mov eax, 0x80; ret" and prints 128 on
// amd64. Settings may be overridden with CODEBUF_CAPACITY, CODEBUF_ARG,
// CODEBUF_VERBOSE, and CODEBUF_LISTING.
package main

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"go.uber.org/zap"

	"github.com/zephyrtronium/codebuf/internal/config"
	"github.com/zephyrtronium/codebuf/internal/listing"
	"github.com/zephyrtronium/codebuf/internal/unsafewx"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "codebuf:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) > 1 {
		return fmt.Errorf("usage: codebuf [config.toml]")
	}
	cfg := config.Default()
	if len(args) == 1 {
		var err error
		if cfg, err = config.Load(args[0]); err != nil {
			return err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := newLogger(cfg.Verbose)
	if err != nil {
		return err
	}
	defer log.Sync()
	if cfg.Verbose {
		unsafewx.Verbose = log
	}
	log.Debug("loaded config", zap.Stringer("config", cfg))

	code, err := cfg.Program()
	if err != nil {
		return err
	}
	b := unsafewx.MustAlloc(cfg.Capacity)
	defer b.Close()
	if _, err := b.Write(code); err != nil {
		return err
	}
	if cfg.Listing {
		lines, decErr := listing.Decode(b.Bytes(), runtime.GOARCH)
		if err := listing.Fprint(stdout, lines); err != nil {
			return err
		}
		if decErr != nil {
			log.Warn("listing incomplete", zap.Error(decErr))
		}
	}
	r := b.Call(uintptr(cfg.Arg))
	log.Info("program returned", zap.Uintptr("result", r))
	_, err = fmt.Fprintln(stdout, r)
	return err
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
