package loader

import (
	"fmt"
	"os"

	"github.com/e32on64/e32on64/dso"
	"github.com/e32on64/e32on64/elf32"
	"github.com/e32on64/e32on64/lowmem"
)

// Loader owns one loaded, relocated, protected 32-bit shared object: its
// low-memory image and the export table other objects or the host can
// resolve symbols against. It keeps no reference to the raw file bytes New
// was given or the elf32.Parser built over them — both are needed only
// for the duration of New, which is also why New's raw argument can safely
// come from a file mapping the caller releases as soon as New returns.
type Loader struct {
	image   *dso.Image
	exports dso.ExportMap
	verbose bool
}

// Options configures New beyond the object's own bytes: an external symbol
// resolver for imports the object does not define itself (typically libc
// shims), relocation policy, and tracing.
type Options struct {
	// ExternalResolve looks up a symbol the object imports but does not
	// define itself, for example a libc function exposed by libcshim. It is
	// tried first; the object's own exports are consulted only as a
	// fallback, so a caller-supplied shim can override a guest-defined
	// symbol of the same name.
	ExternalResolve dso.Resolver
	Relocate        dso.RelocateOptions
	Verbose         bool
}

// New parses raw (the full contents of a 32-bit ELF shared object file),
// builds its image in low memory via alloc, relocates it against its own
// exports and opts.ExternalResolve, and applies page protection. The raw
// buffer is not retained after New returns: the parser over it is used only
// inside New (by Build, BuildExportMap, Relocate and Protect), and Build
// copies the segment contents into the image.
func New(raw []byte, alloc lowmem.Allocator, opts Options) (*Loader, error) {
	p, err := elf32.NewParser(raw)
	if err != nil {
		return nil, &Error{Kind: ErrOpenFailed, Detail: err.Error()}
	}

	trace(opts.Verbose, "parsed ELF32 header: type=%v machine=%v phnum=%d shnum=%d",
		p.Header().Type, p.Header().Machine, p.Header().Phnum, p.Header().Shnum)

	img, err := dso.Build(p, alloc)
	if err != nil {
		return nil, &Error{Kind: ErrOpenFailed, Detail: err.Error()}
	}
	trace(opts.Verbose, "mapped image at base=%#x size=%#x", img.Base(), img.Size())

	exports, err := dso.BuildExportMap(p, img)
	if err != nil {
		return nil, &Error{Kind: ErrOpenFailed, Detail: err.Error()}
	}
	trace(opts.Verbose, "exported %d symbols", len(exports))

	resolve := func(name string) (uint32, bool) {
		if opts.ExternalResolve != nil {
			if addr, ok := opts.ExternalResolve(name); ok {
				return addr, true
			}
		}
		addr, ok := exports[name]
		return addr, ok
	}

	if err := dso.Relocate(p, img, resolve, opts.Relocate); err != nil {
		return nil, &Error{Kind: ErrOpenFailed, Detail: err.Error()}
	}
	trace(opts.Verbose, "relocation complete")

	if err := dso.Protect(p, img, alloc.PageSize()); err != nil {
		return nil, &Error{Kind: ErrOpenFailed, Detail: err.Error()}
	}
	trace(opts.Verbose, "protection applied")

	return &Loader{image: img, exports: exports, verbose: opts.Verbose}, nil
}

// GetSym returns the absolute low-memory address of a symbol exported by
// the loaded object.
func (l *Loader) GetSym(name string) (uint32, error) {
	addr, ok := l.exports[name]
	if !ok {
		return 0, &Error{Kind: ErrSymbolNotFound, Detail: name}
	}
	return addr, nil
}

// Base returns the load base address of the object's image.
func (l *Loader) Base() uint32 { return l.image.Base() }

// Close releases the object's image mapping. The Loader must not be used
// afterward.
func (l *Loader) Close() error {
	return l.image.Region().Unmap()
}

func trace(verbose bool, format string, args ...any) {
	if !verbose {
		return
	}
	fmt.Fprintf(os.Stderr, "e32on64: "+format+"\n", args...)
}
