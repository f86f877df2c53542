package dso

import (
	"encoding/binary"
	"testing"

	"github.com/e32on64/e32on64/elf32"
	"github.com/e32on64/e32on64/lowmem"
	"github.com/e32on64/e32on64/lowmem/lowmemtest"
)

// buildSO assembles a minimal ELF32-i386 ET_DYN image with a single 0x1000
// PT_LOAD segment, a DYNSYM/STRTAB pair, and the given REL entries, reusing
// the same hand-built-buffer technique as elf32's own parser tests.
func buildSO(t *testing.T, exports map[string]uint32, rels []rawRel) []byte {
	t.Helper()
	buf := make([]byte, 0, 512)
	put32 := func(off int, v uint32) {
		for off+4 > len(buf) {
			buf = append(buf, 0)
		}
		binary.LittleEndian.PutUint32(buf[off:], v)
	}
	put16 := func(off int, v uint16) {
		for off+2 > len(buf) {
			buf = append(buf, 0)
		}
		binary.LittleEndian.PutUint16(buf[off:], v)
	}
	putBytes := func(off int, b []byte) {
		for off+len(b) > len(buf) {
			buf = append(buf, 0)
		}
		copy(buf[off:], b)
	}

	putBytes(0, []byte{0x7F, 'E', 'L', 'F', 1, 1, 1, 0})
	put16(16, uint16(elf32.TypeDyn))
	put16(18, uint16(elf32.Machine386))
	put32(20, 1)
	phoff := elf32.HeaderSize
	put32(28, uint32(phoff))
	put16(40, elf32.HeaderSize)
	put16(42, elf32.ProgramHeaderSize)
	put16(44, 1)
	put16(46, elf32.SectionHeaderSize)

	segSize := uint32(0x1000)
	put32(phoff+0, uint32(elf32.PTLoad))
	put32(phoff+4, 0)
	put32(phoff+8, 0)
	put32(phoff+12, 0)
	put32(phoff+16, segSize)
	put32(phoff+20, segSize)
	put32(phoff+24, uint32(elf32.PFRead|elf32.PFWrite|elf32.PFExec))
	put32(phoff+28, 0x1000)

	dataEnd := phoff + elf32.ProgramHeaderSize

	// .dynstr
	dynstrOff := dataEnd
	dynstr := []byte{0}
	names := make([]string, 0, len(exports))
	nameOffset := make(map[string]uint32)
	for name := range exports {
		names = append(names, name)
	}
	for _, name := range names {
		nameOffset[name] = uint32(len(dynstr))
		dynstr = append(dynstr, []byte(name)...)
		dynstr = append(dynstr, 0)
	}
	putBytes(dynstrOff, dynstr)
	dataEnd += len(dynstr)

	// .dynsym: null + one entry per export
	dynsymOff := dataEnd
	put32(dynsymOff, 0)
	put32(dynsymOff+4, 0)
	put32(dynsymOff+8, 0)
	idx := 1
	symIndex := make(map[string]uint32)
	for _, name := range names {
		base := dynsymOff + idx*int(elf32.SymbolSize)
		put32(base+0, nameOffset[name])
		put32(base+4, exports[name])
		put16(base+14, 1) // st_shndx != 0 => defined
		symIndex[name] = uint32(idx)
		idx++
	}
	dataEnd = dynsymOff + idx*int(elf32.SymbolSize)

	// .rel
	relOff := dataEnd
	for i, r := range rels {
		base := relOff + i*int(elf32.RelSize)
		put32(base+0, r.offset)
		info := (symIndex[r.symName] << 8) | uint32(r.typ)
		put32(base+4, info)
	}
	dataEnd = relOff + len(rels)*int(elf32.RelSize)

	shoff := dataEnd
	put32(32, uint32(shoff))
	put16(48, 4)
	put16(50, 0)

	sh1 := shoff + int(elf32.SectionHeaderSize)
	put32(sh1+4, uint32(elf32.SHTDynsym))
	put32(sh1+16, uint32(dynsymOff))
	put32(sh1+20, uint32(idx)*elf32.SymbolSize)
	put32(sh1+24, 2)

	sh2 := sh1 + int(elf32.SectionHeaderSize)
	put32(sh2+4, uint32(elf32.SHTStrtab))
	put32(sh2+16, uint32(dynstrOff))
	put32(sh2+20, uint32(len(dynstr)))

	sh3 := sh2 + int(elf32.SectionHeaderSize)
	put32(sh3+4, uint32(elf32.SHTRel))
	put32(sh3+16, uint32(relOff))
	put32(sh3+20, uint32(len(rels))*elf32.RelSize)
	put32(sh3+24, 1)
	put32(sh3+36, 0) // completes the last 40-byte section header

	// The LOAD segment maps the file from offset 0 with p_filesz == segSize,
	// so the file must be at least that long.
	for len(buf) < int(segSize) {
		buf = append(buf, 0)
	}

	return buf
}

type rawRel struct {
	offset  uint32
	symName string
	typ     elf32.RelType
}

func TestBuildCopiesLoadSegments(t *testing.T) {
	so := buildSO(t, nil, nil)
	so[0x100] = 0xAB // inside the LOAD segment's file contents
	p, err := elf32.NewParser(so)
	if err != nil {
		t.Fatalf("NewParser: %v", err)
	}
	alloc := lowmemtest.NewFakeAllocator(0x1000000)
	img, err := Build(p, alloc)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if img.Size() != 0x1000 {
		t.Fatalf("expected image size 0x1000, got %#x", img.Size())
	}
	if img.Bytes()[0x100] != 0xAB {
		t.Fatalf("expected copied byte 0xAB at 0x100, got %#x", img.Bytes()[0x100])
	}
}

func TestBuildExportMap(t *testing.T) {
	so := buildSO(t, map[string]uint32{"foo": 0x40}, nil)
	p, err := elf32.NewParser(so)
	if err != nil {
		t.Fatalf("NewParser: %v", err)
	}
	alloc := lowmemtest.NewFakeAllocator(0x2000000)
	img, err := Build(p, alloc)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	exports, err := BuildExportMap(p, img)
	if err != nil {
		t.Fatalf("BuildExportMap: %v", err)
	}
	want := img.Base() + 0x40
	if got := exports["foo"]; got != want {
		t.Fatalf("expected foo at %#x, got %#x", want, got)
	}
}

func TestRelocateRelative(t *testing.T) {
	rels := []rawRel{
		{offset: 0x10, symName: "", typ: elf32.RRelative},
	}
	so := buildSO(t, nil, rels)
	p, err := elf32.NewParser(so)
	if err != nil {
		t.Fatalf("NewParser: %v", err)
	}
	alloc := lowmemtest.NewFakeAllocator(0x3000000)
	img, err := Build(p, alloc)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	binary.LittleEndian.PutUint32(img.Bytes()[0x10:], 0x20) // addend

	resolve := func(name string) (uint32, bool) { return 0, false }
	if err := Relocate(p, img, resolve, RelocateOptions{}); err != nil {
		t.Fatalf("Relocate: %v", err)
	}
	got := binary.LittleEndian.Uint32(img.Bytes()[0x10:])
	want := img.Base() + 0x20
	if got != want {
		t.Fatalf("expected RELATIVE result %#x, got %#x", want, got)
	}
}

func TestRelocatePC32ResolvesSymbol(t *testing.T) {
	rels := []rawRel{
		{offset: 0x20, symName: "bar", typ: elf32.RPC32},
	}
	so := buildSO(t, map[string]uint32{"bar": 0}, rels)
	p, err := elf32.NewParser(so)
	if err != nil {
		t.Fatalf("NewParser: %v", err)
	}
	alloc := lowmemtest.NewFakeAllocator(0x4000000)
	img, err := Build(p, alloc)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	binary.LittleEndian.PutUint32(img.Bytes()[0x20:], 0) // addend

	resolved := uint32(0x12345678)
	resolve := func(name string) (uint32, bool) {
		if name == "bar" {
			return resolved, true
		}
		return 0, false
	}
	if err := Relocate(p, img, resolve, RelocateOptions{}); err != nil {
		t.Fatalf("Relocate: %v", err)
	}
	got := binary.LittleEndian.Uint32(img.Bytes()[0x20:])
	p32 := img.Base() + 0x20
	want := resolved - p32 // addend was 0
	if got != want {
		t.Fatalf("expected PC32 result %#x, got %#x", want, got)
	}
}

func TestRelocateUnresolvedFailsByDefault(t *testing.T) {
	rels := []rawRel{
		{offset: 0x20, symName: "missing", typ: elf32.RJmpSlot},
	}
	so := buildSO(t, map[string]uint32{"missing": 0}, rels)
	p, err := elf32.NewParser(so)
	if err != nil {
		t.Fatalf("NewParser: %v", err)
	}
	alloc := lowmemtest.NewFakeAllocator(0x5000000)
	img, err := Build(p, alloc)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	resolve := func(name string) (uint32, bool) { return 0, false }
	err = Relocate(p, img, resolve, RelocateOptions{})
	if err == nil {
		t.Fatal("expected unresolved-symbol error")
	}
	if e, ok := err.(*Error); !ok || e.Kind != ErrUnresolvedSymbol {
		t.Fatalf("expected ErrUnresolvedSymbol, got %v", err)
	}
}

func TestRelocateUnresolvedZeroPolicy(t *testing.T) {
	rels := []rawRel{
		{offset: 0x20, symName: "missing", typ: elf32.RJmpSlot},
	}
	so := buildSO(t, map[string]uint32{"missing": 0}, rels)
	p, err := elf32.NewParser(so)
	if err != nil {
		t.Fatalf("NewParser: %v", err)
	}
	alloc := lowmemtest.NewFakeAllocator(0x6000000)
	img, err := Build(p, alloc)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	binary.LittleEndian.PutUint32(img.Bytes()[0x20:], 0xDEADBEEF)
	resolve := func(name string) (uint32, bool) { return 0, false }
	if err := Relocate(p, img, resolve, RelocateOptions{Unresolved: UnresolvedZero}); err != nil {
		t.Fatalf("Relocate: %v", err)
	}
	if got := binary.LittleEndian.Uint32(img.Bytes()[0x20:]); got != 0 {
		t.Fatalf("expected zeroed target, got %#x", got)
	}
}

func TestRelocateGlobDatIgnoresOwnSymbolAndSubstitutesAbort(t *testing.T) {
	rels := []rawRel{
		{offset: 0x20, symName: "somethingElse", typ: elf32.RGlobDat},
	}
	so := buildSO(t, map[string]uint32{"somethingElse": 0, "abort": 0}, rels)
	p, err := elf32.NewParser(so)
	if err != nil {
		t.Fatalf("NewParser: %v", err)
	}
	alloc := lowmemtest.NewFakeAllocator(0x8000000)
	img, err := Build(p, alloc)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	abortAddr := uint32(0xCAFEBABE)
	var resolvedName string
	resolve := func(name string) (uint32, bool) {
		resolvedName = name
		if name == "abort" {
			return abortAddr, true
		}
		return 0, false
	}
	if err := Relocate(p, img, resolve, RelocateOptions{}); err != nil {
		t.Fatalf("Relocate: %v", err)
	}
	if resolvedName != "abort" {
		t.Fatalf("expected GLOB_DAT to resolve \"abort\" regardless of its own symbol, resolved %q", resolvedName)
	}
	if got := binary.LittleEndian.Uint32(img.Bytes()[0x20:]); got != abortAddr {
		t.Fatalf("expected GLOB_DAT target to hold abort's address %#x, got %#x", abortAddr, got)
	}
}

func TestRelocateGlobDatCustomSubstitute(t *testing.T) {
	rels := []rawRel{
		{offset: 0x20, symName: "ignored", typ: elf32.RGlobDat},
	}
	so := buildSO(t, map[string]uint32{"ignored": 0, "myHandler": 0}, rels)
	p, err := elf32.NewParser(so)
	if err != nil {
		t.Fatalf("NewParser: %v", err)
	}
	alloc := lowmemtest.NewFakeAllocator(0x9000000)
	img, err := Build(p, alloc)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	handlerAddr := uint32(0x11223344)
	resolve := func(name string) (uint32, bool) {
		if name == "myHandler" {
			return handlerAddr, true
		}
		return 0, false
	}
	if err := Relocate(p, img, resolve, RelocateOptions{GlobDat: "myHandler"}); err != nil {
		t.Fatalf("Relocate: %v", err)
	}
	if got := binary.LittleEndian.Uint32(img.Bytes()[0x20:]); got != handlerAddr {
		t.Fatalf("expected GLOB_DAT target to hold myHandler's address %#x, got %#x", handlerAddr, got)
	}
}

func TestProtectAppliesLoadSegmentFlags(t *testing.T) {
	so := buildSO(t, nil, nil)
	p, err := elf32.NewParser(so)
	if err != nil {
		t.Fatalf("NewParser: %v", err)
	}
	alloc := lowmemtest.NewFakeAllocator(0x7000000)
	img, err := Build(p, alloc)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := Protect(p, img, alloc.PageSize()); err != nil {
		t.Fatalf("Protect: %v", err)
	}
	if len(alloc.Calls) == 0 {
		t.Fatal("expected at least one SetProt call")
	}
	for _, c := range alloc.Calls {
		if c.Prot != (lowmem.ProtRead | lowmem.ProtWrite | lowmem.ProtExec) {
			t.Errorf("expected rwx protection, got %v", c.Prot)
		}
	}
}
