package dso

import (
	"github.com/e32on64/e32on64/elf32"
	"github.com/e32on64/e32on64/lowmem"
)

// Image is a loaded, mapped copy of a shared object's PT_LOAD segments,
// mapped contiguously at some base address below 2^32. Offsets into the
// image correspond directly to ELF virtual addresses relative to Base.
type Image struct {
	region lowmem.Region
}

// Base returns the 32-bit load address of the image.
func (img *Image) Base() uint32 { return img.region.Base() }

// Size returns the size in bytes of the mapped image, a multiple of the
// host page size.
func (img *Image) Size() int { return img.region.Size() }

// Bytes returns a slice aliasing the image's memory, indexed by virtual
// address relative to Base.
func (img *Image) Bytes() []byte { return img.region.Bytes() }

// Region returns the underlying low-memory region, for use by callers that
// need to release or reprotect the mapping directly (see Protect).
func (img *Image) Region() lowmem.Region { return img.region }

// Build computes the span covered by every PT_LOAD segment, maps a single
// contiguous, zero-filled, read-write region of that size rounded up to a
// whole number of pages, and copies each segment's file contents (p_filesz
// bytes; the remainder up to p_memsz stays zero, matching .bss) into place
// at its p_vaddr offset. Segments are otherwise independent; Build does not
// enforce that they are non-overlapping, as the original loader's image
// builder does not either.
func Build(p *elf32.Parser, alloc lowmem.Allocator) (*Image, error) {
	var highWater uint64
	var sawLoad bool
	for ph := range p.ProgramHeaders() {
		if ph.Type != elf32.PTLoad {
			continue
		}
		sawLoad = true
		if end := ph.End(); end > highWater {
			highWater = end
		}
	}
	if !sawLoad {
		return nil, &Error{Kind: ErrLayout, Detail: "object has no PT_LOAD segments"}
	}

	pageSize := alloc.PageSize()
	mapSize := lowmem.AlignUp(int(highWater), pageSize)

	region, err := alloc.Map(mapSize, lowmem.ProtRead|lowmem.ProtWrite)
	if err != nil {
		return nil, err
	}

	dst := region.Bytes()
	for ph := range p.ProgramHeaders() {
		if ph.Type != elf32.PTLoad {
			continue
		}
		src, err := p.RawBlock(ph.Offset, ph.Filesz)
		if err != nil {
			region.Unmap()
			return nil, err
		}
		if uint64(ph.Vaddr)+uint64(ph.Filesz) > uint64(len(dst)) {
			region.Unmap()
			return nil, &Error{Kind: ErrLayout, Detail: "segment extends past mapped image"}
		}
		copy(dst[ph.Vaddr:uint64(ph.Vaddr)+uint64(ph.Filesz)], src)
	}

	return &Image{region: region}, nil
}

// ExportMap is a name-to-address table built from a shared object's dynamic
// symbol table, used both to satisfy another object's imports (GetSym) and
// as the default self-lookup entry in a resolver chain.
type ExportMap map[string]uint32

// BuildExportMap scans the DYNSYM section (if any) and returns every
// defined, named symbol's absolute address: image.Base() + st_value. Symbols
// with SHN_UNDEF (st_shndx == 0) are skipped, since their st_value carries
// no meaningful address in the exporting object.
func BuildExportMap(p *elf32.Parser, img *Image) (ExportMap, error) {
	out := make(ExportMap)
	dynsym, ok := p.FindSectionHeader(func(sh elf32.SectionHeader) bool {
		return sh.Type == elf32.SHTDynsym
	})
	if !ok {
		return out, nil
	}
	strtab, err := p.StringTableAt(dynsym.Link)
	if err != nil {
		return nil, err
	}
	syms, err := p.Symbols(dynsym)
	if err != nil {
		return nil, err
	}
	for sym := range syms {
		if sym.Name == 0 || sym.Shndx == 0 {
			continue
		}
		name, err := strtab.GetString(sym.Name)
		if err != nil {
			return nil, err
		}
		if name == "" {
			continue
		}
		out[name] = img.Base() + sym.Value
	}
	return out, nil
}
