package elf32

import "iter"

// Parser is a read-only, bounds-checked view over an ELF32-i386 shared
// object image held in memory. Construction validates the identification
// prefix, type, machine, and section-header entry size; every accessor
// afterward borrows from the underlying buffer without copying.
type Parser struct {
	data   []byte
	header Header
}

// NewParser validates buf as an ELF32-i386 shared object and returns a
// Parser over it. buf is not copied; the caller must not mutate it for the
// lifetime of the Parser.
func NewParser(buf []byte) (*Parser, error) {
	h, err := decodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if err := h.validate(); err != nil {
		return nil, err
	}
	return &Parser{data: buf, header: h}, nil
}

// Header returns the validated ELF header. No further bounds checking is
// performed: validity was established at construction.
func (p *Parser) Header() *Header {
	return &p.header
}

// RawBlock returns a view over data[offset:offset+size], failing
// out-of-range if the range escapes the buffer.
func (p *Parser) RawBlock(offset, size uint32) ([]byte, error) {
	end := uint64(offset) + uint64(size)
	if end > uint64(len(p.data)) {
		return nil, &Error{Kind: ErrOutOfRange, Detail: "raw block exceeds buffer"}
	}
	return p.data[offset:end], nil
}

// ProgramHeaders lazily iterates the on-disk program header array at
// e_phoff, of length e_phnum.
func (p *Parser) ProgramHeaders() iter.Seq[ProgramHeader] {
	return func(yield func(ProgramHeader) bool) {
		for i := 0; i < int(p.header.Phnum); i++ {
			off := p.header.Phoff + uint32(i)*ProgramHeaderSize
			block, err := p.RawBlock(off, ProgramHeaderSize)
			if err != nil {
				return
			}
			if !yield(decodeProgramHeader(block)) {
				return
			}
		}
	}
}

// SectionHeaders lazily iterates the on-disk section header array at
// e_shoff, of length e_shnum.
func (p *Parser) SectionHeaders() iter.Seq[SectionHeader] {
	return func(yield func(SectionHeader) bool) {
		for i := 0; i < int(p.header.Shnum); i++ {
			off := p.header.Shoff + uint32(i)*SectionHeaderSize
			block, err := p.RawBlock(off, SectionHeaderSize)
			if err != nil {
				return
			}
			if !yield(decodeSectionHeader(block)) {
				return
			}
		}
	}
}

// SectionHeaderAt returns the section header at the given index in the
// section header table.
func (p *Parser) SectionHeaderAt(index uint32) (SectionHeader, error) {
	if index >= uint32(p.header.Shnum) {
		return SectionHeader{}, &Error{Kind: ErrOutOfRange, Detail: "section header index exceeds e_shnum"}
	}
	off := p.header.Shoff + index*SectionHeaderSize
	block, err := p.RawBlock(off, SectionHeaderSize)
	if err != nil {
		return SectionHeader{}, err
	}
	return decodeSectionHeader(block), nil
}

// Section returns the raw bytes of a section.
func (p *Parser) Section(sh SectionHeader) ([]byte, error) {
	return p.RawBlock(sh.Offset, sh.Size)
}

// StringTable returns a view over a STRTAB section, failing
// invalid-argument if sh is not a string table.
func (p *Parser) StringTable(sh SectionHeader) (StringTable, error) {
	if sh.Type != SHTStrtab {
		return StringTable{}, &Error{Kind: ErrInvalidArgument, Detail: "section is not SHT_STRTAB"}
	}
	block, err := p.Section(sh)
	if err != nil {
		return StringTable{}, err
	}
	return StringTable{data: block}, nil
}

// StringTableAt is StringTable keyed by section index.
func (p *Parser) StringTableAt(index uint32) (StringTable, error) {
	sh, err := p.SectionHeaderAt(index)
	if err != nil {
		return StringTable{}, err
	}
	return p.StringTable(sh)
}

// Symbols lazily iterates a SYMTAB or DYNSYM section's entries, failing
// invalid-argument if sh is neither, invalid-layout if its size is not a
// multiple of the symbol entry size.
func (p *Parser) Symbols(sh SectionHeader) (iter.Seq[Symbol], error) {
	if sh.Type != SHTSymtab && sh.Type != SHTDynsym {
		return nil, &Error{Kind: ErrInvalidArgument, Detail: "section is neither SHT_SYMTAB nor SHT_DYNSYM"}
	}
	if sh.Size%SymbolSize != 0 {
		return nil, &Error{Kind: ErrInvalidLayout, Detail: "symbol section size is not a multiple of entry size"}
	}
	block, err := p.Section(sh)
	if err != nil {
		return nil, err
	}
	count := len(block) / SymbolSize
	return func(yield func(Symbol) bool) {
		for i := 0; i < count; i++ {
			if !yield(decodeSymbol(block[i*SymbolSize : (i+1)*SymbolSize])) {
				return
			}
		}
	}, nil
}

// SymbolAt returns the symbol at the given index within a SYMTAB/DYNSYM
// section without materializing the whole iteration.
func (p *Parser) SymbolAt(sh SectionHeader, index uint32) (Symbol, error) {
	if sh.Type != SHTSymtab && sh.Type != SHTDynsym {
		return Symbol{}, &Error{Kind: ErrInvalidArgument, Detail: "section is neither SHT_SYMTAB nor SHT_DYNSYM"}
	}
	if sh.Size%SymbolSize != 0 {
		return Symbol{}, &Error{Kind: ErrInvalidLayout, Detail: "symbol section size is not a multiple of entry size"}
	}
	off := sh.Offset + index*SymbolSize
	block, err := p.RawBlock(off, SymbolSize)
	if err != nil {
		return Symbol{}, err
	}
	return decodeSymbol(block), nil
}

// Relocations lazily iterates a REL section's entries, failing
// invalid-argument if sh is not REL, invalid-layout if its size is not a
// multiple of the relocation entry size.
func (p *Parser) Relocations(sh SectionHeader) (iter.Seq[Rel], error) {
	if sh.Type != SHTRel {
		return nil, &Error{Kind: ErrInvalidArgument, Detail: "section is not SHT_REL"}
	}
	if sh.Size%RelSize != 0 {
		return nil, &Error{Kind: ErrInvalidLayout, Detail: "relocation section size is not a multiple of entry size"}
	}
	block, err := p.Section(sh)
	if err != nil {
		return nil, err
	}
	count := len(block) / RelSize
	return func(yield func(Rel) bool) {
		for i := 0; i < count; i++ {
			if !yield(decodeRel(block[i*RelSize : (i+1)*RelSize])) {
				return
			}
		}
	}, nil
}

// FindSectionHeader returns the first section header matching pred.
func (p *Parser) FindSectionHeader(pred func(SectionHeader) bool) (SectionHeader, bool) {
	for sh := range p.SectionHeaders() {
		if pred(sh) {
			return sh, true
		}
	}
	return SectionHeader{}, false
}
