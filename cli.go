package main

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/e32on64/e32on64/entry32"
	"github.com/e32on64/e32on64/libcshim"
	"github.com/e32on64/e32on64/loader"
	"github.com/e32on64/e32on64/lowmem"
	"github.com/e32on64/e32on64/watch"
)

// RunCLI dispatches to the e32on64 subcommand named by args[0]: call, syms,
// watch, help, or version.
func RunCLI(args []string) error {
	if len(args) == 0 {
		return cmdHelp()
	}

	switch args[0] {
	case "call":
		return cmdCall(args[1:])
	case "syms":
		return cmdSyms(args[1:])
	case "watch":
		return cmdWatch(args[1:])
	case "help", "--help", "-h":
		return cmdHelp()
	case "version", "--version", "-V":
		fmt.Println(versionString)
		return nil
	default:
		return fmt.Errorf("unknown command: %s\n\nRun 'e32on64 help' for usage information", args[0])
	}
}

// libcShimFlags adds the hex-address flags shared by call and watch for
// pointing the optional libc shim table at real host libc functions. There
// is no portable way to discover abort/abs/atoi's addresses from pure Go
// without cgo, so the caller supplies them (for example, read out of
// /proc/self/maps plus the libc symbol table, or from a small dlsym helper
// run ahead of time); omitting a flag just leaves that shim unbuilt.
type libcShimFlags struct {
	abort, abs, atoi string
}

func (f *libcShimFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.abort, "shim-abort", "", "host address of libc abort(), hex, to shim for the object")
	fs.StringVar(&f.abs, "shim-abs", "", "host address of libc abs(), hex, to shim for the object")
	fs.StringVar(&f.atoi, "shim-atoi", "", "host address of libc atoi(), hex, to shim for the object")
}

func (f *libcShimFlags) targets() (map[string]uint64, error) {
	out := make(map[string]uint64)
	for name, raw := range map[string]string{"abort": f.abort, "abs": f.abs, "atoi": f.atoi} {
		if raw == "" {
			continue
		}
		v, err := strconv.ParseUint(strings.TrimPrefix(raw, "0x"), 16, 64)
		if err != nil {
			return nil, fmt.Errorf("-shim-%s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

func cmdCall(args []string) error {
	cfg := loader.ConfigFromEnv()
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	verbose := fs.Bool("v", cfg.Verbose, "trace loader steps to stderr")
	var shims libcShimFlags
	shims.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) < 2 {
		return fmt.Errorf("usage: e32on64 call [-v] [-shim-abort=ADDR ...] <path.so> <symbol> [arg]")
	}
	path, symbol := rest[0], rest[1]
	var arg int32
	if len(rest) > 2 {
		v, err := strconv.ParseInt(rest[2], 10, 32)
		if err != nil {
			return fmt.Errorf("arg: %w", err)
		}
		arg = int32(v)
	}

	l, shimTable, err := openWithShims(path, *verbose, shims, cfg)
	if err != nil {
		return err
	}
	defer l.Close()
	if shimTable != nil {
		defer shimTable.Close()
	}

	addr, err := l.GetSym(symbol)
	if err != nil {
		return err
	}
	ret := entry32.Call(addr, arg)
	fmt.Println(ret)
	return nil
}

func cmdSyms(args []string) error {
	fs := flag.NewFlagSet("syms", flag.ContinueOnError)
	verbose := fs.Bool("v", loader.ConfigFromEnv().Verbose, "trace loader steps to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) != 1 {
		return fmt.Errorf("usage: e32on64 syms [-v] <path.so>")
	}

	mapping, err := loader.Open(rest[0])
	if err != nil {
		return err
	}
	defer mapping.Close()

	alloc := lowmem.NewUnixAllocator()
	l, err := loader.New(mapping.Bytes(), alloc, loader.Options{Verbose: *verbose})
	if err != nil {
		return err
	}
	defer l.Close()

	fmt.Printf("base: %#x\n", l.Base())
	return nil
}

func cmdWatch(args []string) error {
	cfg := loader.ConfigFromEnv()
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	verbose := fs.Bool("v", cfg.Verbose, "trace loader steps to stderr")
	var shims libcShimFlags
	shims.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) < 2 {
		return fmt.Errorf("usage: e32on64 watch [-v] [-shim-abort=ADDR ...] <path.so> <symbol>")
	}
	path, symbol := rest[0], rest[1]

	reload := func(p string) {
		l, shimTable, err := openWithShims(p, *verbose, shims, cfg)
		if err != nil {
			fmt.Printf("reload failed: %v\n", err)
			return
		}
		defer l.Close()
		if shimTable != nil {
			defer shimTable.Close()
		}
		addr, err := l.GetSym(symbol)
		if err != nil {
			fmt.Printf("reload failed: %v\n", err)
			return
		}
		fmt.Printf("reloaded %s: %s at %#x\n", p, symbol, addr)
	}

	w, err := watch.New(reload)
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(path); err != nil {
		return err
	}
	reload(path)
	w.Run(*verbose)
	return nil
}

func openWithShims(path string, verbose bool, shims libcShimFlags, cfg loader.Config) (*loader.Loader, *libcshim.Table, error) {
	mapping, err := loader.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer mapping.Close()

	alloc := lowmem.NewUnixAllocator()

	targets, err := shims.targets()
	if err != nil {
		return nil, nil, err
	}
	restrictToConfiguredFuncs(targets, cfg.LibcFuncs)

	var shimTable *libcshim.Table
	var resolve func(string) (uint32, bool)
	if len(targets) > 0 {
		shimTable, err = libcshim.Build(alloc, cfg.ShimPageSize, libcshim.DefaultDescriptors(targets))
		if err != nil {
			return nil, nil, err
		}
		resolve = shimTable.Address
	}

	l, err := loader.New(mapping.Bytes(), alloc, loader.Options{Verbose: verbose, ExternalResolve: resolve})
	if err != nil {
		if shimTable != nil {
			shimTable.Close()
		}
		return nil, nil, err
	}
	return l, shimTable, nil
}

// restrictToConfiguredFuncs drops any resolved shim target whose name is
// not in allowed, so E32_LIBC_FUNCS can narrow which shims a build
// actually emits without touching the -shim-* flags that supply their
// addresses.
func restrictToConfiguredFuncs(targets map[string]uint64, allowed []string) {
	keep := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		keep[name] = true
	}
	for name := range targets {
		if !keep[name] {
			delete(targets, name)
		}
	}
}

func cmdHelp() error {
	fmt.Println(versionString)
	fmt.Println(`
usage:
  e32on64 call [-v] [-shim-abort=ADDR -shim-abs=ADDR -shim-atoi=ADDR] <path.so> <symbol> [arg]
      load path.so and call its exported symbol with a single cdecl argument

  e32on64 syms [-v] <path.so>
      load path.so and print its image base address

  e32on64 watch [-v] [-shim-... ] <path.so> <symbol>
      reload path.so on every write and print symbol's address each time

  e32on64 help
  e32on64 version`)
	return nil
}
