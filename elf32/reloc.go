package elf32

import "encoding/binary"

// RelSize is the fixed on-disk size of a REL relocation entry (no explicit
// addend; the addend is read from the target word in place).
const RelSize = 8

// Rel mirrors one ELF32 REL relocation entry.
type Rel struct {
	Offset Address // r_offset: target virtual address
	Info   Word    // r_info: packed type (low 8 bits) + symbol index (upper 24 bits)
}

func decodeRel(b []byte) Rel {
	_ = b[:RelSize]
	return Rel{
		Offset: binary.LittleEndian.Uint32(b[0:4]),
		Info:   binary.LittleEndian.Uint32(b[4:8]),
	}
}

// Type returns the relocation kind: the low 8 bits of r_info.
func (r Rel) Type() RelType { return RelType(r.Info & 0xFF) }

// Sym returns the symbol table index: the upper 24 bits of r_info.
func (r Rel) Sym() uint32 { return r.Info >> 8 }
