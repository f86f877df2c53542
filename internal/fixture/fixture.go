// Package fixture builds minimal, byte-exact ELF32-i386 shared object
// images for tests. No real i386 cross-compiler is available in this
// environment, so every test that needs an object to load constructs one
// directly in Go instead of linking a prebuilt .so.
package fixture

import "encoding/binary"

const (
	headerSize        = 52
	programHeaderSize = 32
	sectionHeaderSize = 40
	symbolSize        = 16
	relSize           = 8

	ptLoad    = 1
	shtDynsym = 11
	shtStrtab = 3
	shtRel    = 9

	pfRead  = 1 << 2
	pfWrite = 1 << 1
	pfExec  = 1 << 0
)

// Export is a single exported symbol for a fixture object.
type Export struct {
	Name  string
	Value uint32
}

// Import is a single REL relocation entry referencing a named symbol.
type Import struct {
	Offset uint32
	Name   string
	Type   byte
}

// Options configures a fixture object's single PT_LOAD segment and its
// dynamic symbol table.
type Options struct {
	SegmentSize uint32
	Exports     []Export
	Imports     []Import
}

type writer struct {
	buf []byte
}

func (w *writer) put32(off int, v uint32) {
	for off+4 > len(w.buf) {
		w.buf = append(w.buf, 0)
	}
	binary.LittleEndian.PutUint32(w.buf[off:], v)
}

func (w *writer) put16(off int, v uint16) {
	for off+2 > len(w.buf) {
		w.buf = append(w.buf, 0)
	}
	binary.LittleEndian.PutUint16(w.buf[off:], v)
}

func (w *writer) putBytes(off int, b []byte) {
	for off+len(b) > len(w.buf) {
		w.buf = append(w.buf, 0)
	}
	copy(w.buf[off:], b)
}

// Build returns the raw bytes of an ET_DYN ELF32-i386 object shaped by
// opts: one RWX PT_LOAD segment of opts.SegmentSize bytes, a DYNSYM section
// naming opts.Exports, and a REL section encoding opts.Imports against
// those same exported symbol slots (every referenced name must also appear
// in opts.Exports, as in a real object importing a symbol it re-exports for
// the purpose of being resolved from outside).
func Build(opts Options) []byte {
	w := &writer{}

	w.putBytes(0, []byte{0x7F, 'E', 'L', 'F', 1, 1, 1, 0})
	w.put16(16, 3) // ET_DYN
	w.put16(18, 3) // EM_386
	w.put32(20, 1)
	phoff := headerSize
	w.put32(28, uint32(phoff))
	w.put16(40, headerSize)
	w.put16(42, programHeaderSize)
	w.put16(44, 1)
	w.put16(46, sectionHeaderSize)

	segSize := opts.SegmentSize
	if segSize == 0 {
		segSize = 0x1000
	}
	w.put32(phoff+0, ptLoad)
	w.put32(phoff+4, 0)
	w.put32(phoff+8, 0)
	w.put32(phoff+12, 0)
	w.put32(phoff+16, segSize)
	w.put32(phoff+20, segSize)
	w.put32(phoff+24, pfRead|pfWrite|pfExec)
	w.put32(phoff+28, 0x1000)

	dataEnd := phoff + programHeaderSize

	isExported := make(map[string]bool, len(opts.Exports))
	for _, e := range opts.Exports {
		isExported[e.Name] = true
	}
	// Names referenced by an import but never exported become undefined
	// (SHN_UNDEF) dynsym entries: present in the symbol table so a
	// relocation can name them, but skipped by BuildExportMap, so the
	// object must resolve them externally.
	var undefined []string
	seenUndefined := make(map[string]bool)
	for _, im := range opts.Imports {
		if !isExported[im.Name] && !seenUndefined[im.Name] {
			seenUndefined[im.Name] = true
			undefined = append(undefined, im.Name)
		}
	}

	dynstrOff := dataEnd
	dynstr := []byte{0}
	nameOffset := make(map[string]uint32, len(opts.Exports)+len(undefined))
	for _, e := range opts.Exports {
		nameOffset[e.Name] = uint32(len(dynstr))
		dynstr = append(dynstr, []byte(e.Name)...)
		dynstr = append(dynstr, 0)
	}
	for _, name := range undefined {
		nameOffset[name] = uint32(len(dynstr))
		dynstr = append(dynstr, []byte(name)...)
		dynstr = append(dynstr, 0)
	}
	w.putBytes(dynstrOff, dynstr)
	dataEnd += len(dynstr)

	dynsymOff := dataEnd
	w.put32(dynsymOff, 0)
	symIndex := make(map[string]uint32, len(opts.Exports)+len(undefined))
	idx := 1
	for _, e := range opts.Exports {
		base := dynsymOff + idx*symbolSize
		w.put32(base+0, nameOffset[e.Name])
		w.put32(base+4, e.Value)
		w.put16(base+14, 1) // defined
		symIndex[e.Name] = uint32(idx)
		idx++
	}
	for _, name := range undefined {
		base := dynsymOff + idx*symbolSize
		w.put32(base+0, nameOffset[name])
		w.put32(base+4, 0)
		w.put16(base+14, 0) // SHN_UNDEF
		symIndex[name] = uint32(idx)
		idx++
	}
	dataEnd = dynsymOff + idx*symbolSize

	relOff := dataEnd
	for i, r := range opts.Imports {
		base := relOff + i*relSize
		w.put32(base+0, r.Offset)
		info := (symIndex[r.Name] << 8) | uint32(r.Type)
		w.put32(base+4, info)
	}
	dataEnd = relOff + len(opts.Imports)*relSize

	shoff := dataEnd
	w.put32(32, uint32(shoff))
	w.put16(48, 4)
	w.put16(50, 0)

	sh1 := shoff + sectionHeaderSize
	w.put32(sh1+4, shtDynsym)
	w.put32(sh1+16, uint32(dynsymOff))
	w.put32(sh1+20, uint32(idx)*symbolSize)
	w.put32(sh1+24, 2)

	sh2 := sh1 + sectionHeaderSize
	w.put32(sh2+4, shtStrtab)
	w.put32(sh2+16, uint32(dynstrOff))
	w.put32(sh2+20, uint32(len(dynstr)))

	sh3 := sh2 + sectionHeaderSize
	w.put32(sh3+4, shtRel)
	w.put32(sh3+16, uint32(relOff))
	w.put32(sh3+20, uint32(len(opts.Imports))*relSize)
	w.put32(sh3+24, 1)
	w.put32(sh3+36, 0) // completes the last 40-byte section header

	// The LOAD segment maps the file from offset 0 with p_filesz == segSize,
	// so the file must be at least that long.
	for len(w.buf) < int(segSize) {
		w.buf = append(w.buf, 0)
	}

	return w.buf
}
