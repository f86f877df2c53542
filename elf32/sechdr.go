package elf32

import "encoding/binary"

// SectionHeaderSize is the fixed on-disk size of an ELF32 section header
// entry: 10 little-endian 32-bit fields.
const SectionHeaderSize = 40

// SectionHeader mirrors one ELF32 section header entry.
type SectionHeader struct {
	Name      Word // byte offset into the section-header string table
	Type      SectionType
	Flags     Word
	Addr      Address
	Offset    Offset
	Size      Word
	Link      Word
	Info      Word
	Addralign Word
	Entsize   Word
}

func decodeSectionHeader(b []byte) SectionHeader {
	_ = b[:SectionHeaderSize]
	return SectionHeader{
		Name:      binary.LittleEndian.Uint32(b[0:4]),
		Type:      SectionType(binary.LittleEndian.Uint32(b[4:8])),
		Flags:     binary.LittleEndian.Uint32(b[8:12]),
		Addr:      binary.LittleEndian.Uint32(b[12:16]),
		Offset:    binary.LittleEndian.Uint32(b[16:20]),
		Size:      binary.LittleEndian.Uint32(b[20:24]),
		Link:      binary.LittleEndian.Uint32(b[24:28]),
		Info:      binary.LittleEndian.Uint32(b[28:32]),
		Addralign: binary.LittleEndian.Uint32(b[32:36]),
		Entsize:   binary.LittleEndian.Uint32(b[36:40]),
	}
}
