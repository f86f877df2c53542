// Package lowmemtest provides a fake lowmem.Allocator backed by ordinary Go
// slices, for exercising the parser/builder/relocator/protector pipeline in
// tests that do not run on a real low-memory-mapping host.
package lowmemtest

import (
	"fmt"

	"github.com/e32on64/e32on64/lowmem"
)

const defaultPageSize = 4096

// FakeAllocator hands out sequentially-based regions starting at base. It
// never touches the OS; SetProt calls are recorded rather than enforced,
// since plain Go memory cannot be made executable or have writes trapped.
type FakeAllocator struct {
	base     uint32
	pageSize int

	// Calls records every protection change, in order, for assertions.
	Calls []ProtCall
}

// ProtCall records one SetProt invocation for test assertions.
type ProtCall struct {
	RegionBase uint32
	Off        int
	Size       int
	Prot       lowmem.Prot
}

// NewFakeAllocator returns an allocator that places its first mapping at
// base. base and every subsequent mapping are kept well below 2^32.
func NewFakeAllocator(base uint32) *FakeAllocator {
	return &FakeAllocator{base: base, pageSize: defaultPageSize}
}

func (a *FakeAllocator) PageSize() int { return a.pageSize }

func (a *FakeAllocator) Map(size int, prot lowmem.Prot) (lowmem.Region, error) {
	if size <= 0 || size%a.pageSize != 0 {
		return nil, &lowmem.Error{Kind: lowmem.ErrAllocationFailure, Detail: "size must be a positive multiple of the page size"}
	}
	if uint64(a.base)+uint64(size) > 1<<32 {
		return nil, &lowmem.Error{Kind: lowmem.ErrAllocationFailure, Detail: "fake allocator exhausted its low-memory budget"}
	}
	r := &fakeRegion{
		owner: a,
		base:  a.base,
		data:  make([]byte, size),
	}
	a.base += uint32(size)
	// Keep every region page-aligned the way a real mmap placement would.
	a.base = uint32(lowmem.AlignUp(int(a.base), a.pageSize))
	return r, nil
}

type fakeRegion struct {
	owner *FakeAllocator
	base  uint32
	data  []byte
	freed bool
}

func (r *fakeRegion) Base() uint32  { return r.base }
func (r *fakeRegion) Size() int     { return len(r.data) }
func (r *fakeRegion) Bytes() []byte { return r.data }

func (r *fakeRegion) SetProt(off, size int, prot lowmem.Prot) error {
	if r.freed {
		return &lowmem.Error{Kind: lowmem.ErrAllocationFailure, Detail: "SetProt on unmapped region"}
	}
	if off < 0 || size < 0 || off+size > len(r.data) {
		return &lowmem.Error{Kind: lowmem.ErrAllocationFailure, Detail: fmt.Sprintf("protection sub-range [%d,%d) escapes region of size %d", off, off+size, len(r.data))}
	}
	r.owner.Calls = append(r.owner.Calls, ProtCall{RegionBase: r.base, Off: off, Size: size, Prot: prot})
	return nil
}

func (r *fakeRegion) Unmap() error {
	r.freed = true
	r.data = nil
	return nil
}
