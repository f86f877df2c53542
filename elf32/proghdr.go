package elf32

import "encoding/binary"

// ProgramHeaderSize is the fixed on-disk size of an ELF32 program header
// entry: 8 little-endian 32-bit fields.
const ProgramHeaderSize = 32

// ProgramHeader mirrors one ELF32 program header entry.
type ProgramHeader struct {
	Type   ProgType
	Offset Offset
	Vaddr  Address
	Paddr  Address // physical address; carried for layout fidelity, never consulted
	Filesz Word
	Memsz  Word
	Flags  ProgFlags
	Align  Word
}

func decodeProgramHeader(b []byte) ProgramHeader {
	_ = b[:ProgramHeaderSize] // bounds check hint
	return ProgramHeader{
		Type:   ProgType(binary.LittleEndian.Uint32(b[0:4])),
		Offset: binary.LittleEndian.Uint32(b[4:8]),
		Vaddr:  binary.LittleEndian.Uint32(b[8:12]),
		Paddr:  binary.LittleEndian.Uint32(b[12:16]),
		Filesz: binary.LittleEndian.Uint32(b[16:20]),
		Memsz:  binary.LittleEndian.Uint32(b[20:24]),
		Flags:  ProgFlags(binary.LittleEndian.Uint32(b[24:28])),
		Align:  binary.LittleEndian.Uint32(b[28:32]),
	}
}

// End returns the highest virtual address covered by this header's memory
// image: Vaddr + Memsz.
func (p ProgramHeader) End() uint64 {
	return uint64(p.Vaddr) + uint64(p.Memsz)
}
