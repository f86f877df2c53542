package libcshim

import (
	"github.com/e32on64/e32on64/lowmem"
)

// DefaultRegionSize is the size of the low-memory page this package maps to
// hold every emitted shim, matching the original libc wrapper section.
const DefaultRegionSize = 8096

// Table is a built, published, write-locked set of libc shims, resident in
// one low-memory mapping. Entries are addressed by name through Address.
type Table struct {
	region    lowmem.Region
	addresses map[string]uint32
}

// Build lays out descriptors sequentially into a single low-memory region
// sized to size (rounded up to alloc's page size), each aligned to
// FuncAlign and padded with NOP, writes their machine code, then revokes
// write access so the region is execute+read only. A failed Build leaves no
// region mapped.
func Build(alloc lowmem.Allocator, size int, descriptors []Descriptor) (*Table, error) {
	pageSize := alloc.PageSize()
	mapSize := lowmem.AlignUp(size, pageSize)

	region, err := alloc.Map(mapSize, lowmem.ProtRead|lowmem.ProtWrite|lowmem.ProtExec)
	if err != nil {
		return nil, err
	}

	addrs := make(map[string]uint32, len(descriptors))
	buf := region.Bytes()
	base := region.Base()
	pos := 0

	for _, d := range descriptors {
		aligned := d.AlignedSize()
		if pos+aligned > len(buf) {
			region.Unmap()
			return nil, &Error{Kind: ErrBufferTooSmall, Detail: "shim region too small for descriptor set"}
		}
		addr := base + uint32(pos)
		n, err := Emit(buf[pos:pos+aligned], addr, d)
		if err != nil {
			region.Unmap()
			return nil, err
		}
		addrs[d.Name] = addr
		pos += n
	}

	if err := region.SetProt(0, region.Size(), lowmem.ProtRead|lowmem.ProtExec); err != nil {
		region.Unmap()
		return nil, err
	}

	return &Table{region: region, addresses: addrs}, nil
}

// Address returns the low-memory address of the named shim.
func (t *Table) Address(name string) (uint32, bool) {
	addr, ok := t.addresses[name]
	return addr, ok
}

// Close releases the underlying mapping. The Table must not be used
// afterward.
func (t *Table) Close() error {
	return t.region.Unmap()
}
