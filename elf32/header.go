package elf32

import "encoding/binary"

// HeaderSize is the fixed on-disk size of the ELF32 header.
const HeaderSize = 52

// identSize is the length of the e_ident prefix.
const identSize = 16

// Header mirrors the fixed 52-byte ELF32 header layout, little-endian.
type Header struct {
	Ident     [identSize]byte
	Type      Type
	Machine   Machine
	Version   Word
	Entry     Address
	Phoff     Offset
	Shoff     Offset
	Flags     Word
	Ehsize    Half
	Phentsize Half
	Phnum     Half
	Shentsize Half
	Shnum     Half
	Shstrndx  Half
}

// wantIdent is the required first 7 bytes of e_ident: magic, ELFCLASS32,
// ELFDATA2LSB, EV_CURRENT.
var wantIdent = [7]byte{0x7F, 'E', 'L', 'F', 1, 1, 1}

func decodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, &Error{Kind: ErrOutOfRange, Detail: "buffer shorter than ELF header"}
	}
	var h Header
	copy(h.Ident[:], b[0:identSize])
	h.Type = Type(binary.LittleEndian.Uint16(b[16:18]))
	h.Machine = Machine(binary.LittleEndian.Uint16(b[18:20]))
	h.Version = binary.LittleEndian.Uint32(b[20:24])
	h.Entry = binary.LittleEndian.Uint32(b[24:28])
	h.Phoff = binary.LittleEndian.Uint32(b[28:32])
	h.Shoff = binary.LittleEndian.Uint32(b[32:36])
	h.Flags = binary.LittleEndian.Uint32(b[36:40])
	h.Ehsize = binary.LittleEndian.Uint16(b[40:42])
	h.Phentsize = binary.LittleEndian.Uint16(b[42:44])
	h.Phnum = binary.LittleEndian.Uint16(b[44:46])
	h.Shentsize = binary.LittleEndian.Uint16(b[46:48])
	h.Shnum = binary.LittleEndian.Uint16(b[48:50])
	h.Shstrndx = binary.LittleEndian.Uint16(b[50:52])
	return h, nil
}

func (h Header) validate() error {
	var ident7 [7]byte
	copy(ident7[:], h.Ident[:7])
	if ident7 != wantIdent {
		return &Error{Kind: ErrInvalidFormat, Detail: "bad e_ident prefix"}
	}
	if h.Type != TypeDyn {
		return &Error{Kind: ErrInvalidFormat, Detail: "e_type is not ET_DYN (shared object)"}
	}
	if h.Machine != Machine386 {
		return &Error{Kind: ErrInvalidFormat, Detail: "e_machine is not EM_386"}
	}
	if h.Shentsize != SectionHeaderSize {
		return &Error{Kind: ErrInvalidFormat, Detail: "e_shentsize does not match ELF32 section header size"}
	}
	return nil
}
