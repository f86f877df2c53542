package dso

import (
	"encoding/binary"

	"github.com/e32on64/e32on64/elf32"
)

// Resolver looks up the absolute address of an imported symbol by name. It
// returns ok=false if the symbol is not defined anywhere the loader knows
// about (neither in the object's own exports nor in any library registered
// with the loader).
type Resolver func(name string) (addr uint32, ok bool)

// UnsupportedPolicy controls what happens when a relocation entry names a
// type with no apply rule (see elf32.RelType.Handled).
type UnsupportedPolicy int

const (
	// UnsupportedFail aborts relocation with ErrUnsupportedRelocation.
	UnsupportedFail UnsupportedPolicy = iota
	// UnsupportedSkip leaves the target word untouched and continues.
	UnsupportedSkip
)

// UnresolvedPolicy controls what happens when a relocation's resolved
// symbol name cannot be found, whether that name comes from the relocation
// entry itself (R_386_PC32, R_386_JMP_SLOT) or from GlobDatPolicy's
// substitution (R_386_GLOB_DAT).
type UnresolvedPolicy int

const (
	// UnresolvedFail aborts relocation with ErrUnresolvedSymbol.
	UnresolvedFail UnresolvedPolicy = iota
	// UnresolvedZero writes zero into the target word and continues,
	// matching a lazily-bound PLT slot that is never called.
	UnresolvedZero
)

// GlobDatPolicy names the symbol substituted for every R_386_GLOB_DAT
// relocation, in place of whatever symbol the entry itself designates. The
// original loader's relocate_elf32 hardcodes this substitution to "abort"
// unconditionally; this is preserved here as a named, configurable quirk
// rather than a silent default. The zero value means "abort".
type GlobDatPolicy string

// DefaultGlobDatSymbol is substituted for every GLOB_DAT relocation when
// GlobDatPolicy is the empty string.
const DefaultGlobDatSymbol GlobDatPolicy = "abort"

func (p GlobDatPolicy) symbol() string {
	if p == "" {
		return string(DefaultGlobDatSymbol)
	}
	return string(p)
}

// RelocateOptions configures Relocate's handling of the open questions the
// original loader resolves permissively in some callers and strictly in
// others: whether an unresolved imported symbol is fatal, whether a
// relocation type with no apply rule is fatal, and which symbol stands in
// for every GLOB_DAT relocation.
type RelocateOptions struct {
	Unsupported UnsupportedPolicy
	Unresolved  UnresolvedPolicy
	GlobDat     GlobDatPolicy
}

// Relocate walks every SHT_REL section in p and applies each entry's
// relocation in place against img, using resolve for every symbol lookup.
// Relocate does not consult the object's own exports by itself; a caller
// that wants them folds them into resolve, as loader.New does.
//
// Supported relocation types and their apply rule, matching the original
// loader's relocate_elf32:
//
//	R_386_NONE      no-op
//	R_386_PC32      *P = S + A - P
//	R_386_GLOB_DAT  *P = S, where S always resolves opts.GlobDat, not the
//	                entry's own symbol
//	R_386_JMP_SLOT  *P = S
//	R_386_RELATIVE  *P = B + A
//
// where A is the addend read from the target word before it is overwritten,
// P is the relocation's own virtual address, S is the resolved symbol
// address, and B is the image's load base.
func Relocate(p *elf32.Parser, img *Image, resolve Resolver, opts RelocateOptions) error {
	relSections := make([]elf32.SectionHeader, 0, 4)
	for sh := range p.SectionHeaders() {
		if sh.Type == elf32.SHTRel {
			relSections = append(relSections, sh)
		}
	}

	dst := img.Bytes()
	base := img.Base()

	for _, relHdr := range relSections {
		symHdr, err := p.SectionHeaderAt(relHdr.Link)
		if err != nil {
			return err
		}
		strtab, err := p.StringTableAt(symHdr.Link)
		if err != nil {
			return err
		}
		rels, err := p.Relocations(relHdr)
		if err != nil {
			return err
		}
		for r := range rels {
			if err := applyOne(p, dst, base, symHdr, strtab, r, resolve, opts); err != nil {
				return err
			}
		}
	}
	return nil
}

func applyOne(
	p *elf32.Parser,
	dst []byte,
	base uint32,
	symHdr elf32.SectionHeader,
	strtab elf32.StringTable,
	r elf32.Rel,
	resolve Resolver,
	opts RelocateOptions,
) error {
	off := r.Offset
	if uint64(off)+4 > uint64(len(dst)) {
		return &Error{Kind: ErrLayout, Detail: "relocation target escapes image"}
	}
	target := dst[off : off+4]
	addend := int32(binary.LittleEndian.Uint32(target))
	p32 := base + off

	switch typ := r.Type(); typ {
	case elf32.RNone:
		return nil

	case elf32.RRelative:
		binary.LittleEndian.PutUint32(target, uint32(int32(base)+addend))
		return nil

	case elf32.RGlobDat:
		// The entry's own symbol is never consulted: the original loader's
		// relocate_elf32 hardcodes every GLOB_DAT relocation to resolve the
		// GlobDatPolicy symbol instead, regardless of what the entry names.
		name := opts.GlobDat.symbol()
		addr, ok := resolve(name)
		if !ok {
			return handleUnresolved(target, name, opts.Unresolved)
		}
		binary.LittleEndian.PutUint32(target, addr)
		return nil

	case elf32.RPC32, elf32.RJmpSlot:
		sym, err := p.SymbolAt(symHdr, r.Sym())
		if err != nil {
			return err
		}
		name, err := strtab.GetString(sym.Name)
		if err != nil {
			return err
		}
		addr, ok := resolve(name)
		if !ok {
			return handleUnresolved(target, name, opts.Unresolved)
		}
		switch typ {
		case elf32.RPC32:
			binary.LittleEndian.PutUint32(target, uint32(int32(addr)+addend-int32(p32)))
		default: // RJmpSlot
			binary.LittleEndian.PutUint32(target, addr)
		}
		return nil

	default:
		if opts.Unsupported == UnsupportedSkip {
			return nil
		}
		return &Error{Kind: ErrUnsupportedRelocation, Detail: typ.String()}
	}
}

func handleUnresolved(target []byte, name string, policy UnresolvedPolicy) error {
	if policy == UnresolvedZero {
		binary.LittleEndian.PutUint32(target, 0)
		return nil
	}
	return &Error{Kind: ErrUnresolvedSymbol, Detail: "undefined symbol \"" + name + "\""}
}
