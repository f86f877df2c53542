//go:build linux && amd64

package lowmem

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// UnixAllocator is the production Allocator: anonymous, private mappings
// placed below 2^32 via MAP_32BIT, exactly the placement hint the original
// loader requested from mmap(2).
type UnixAllocator struct{}

// NewUnixAllocator returns the host allocator for amd64 Linux.
func NewUnixAllocator() *UnixAllocator { return &UnixAllocator{} }

func (UnixAllocator) PageSize() int { return unix.Getpagesize() }

func (a UnixAllocator) Map(size int, prot Prot) (Region, error) {
	if size <= 0 || size%a.PageSize() != 0 {
		return nil, &Error{Kind: ErrAllocationFailure, Detail: "size must be a positive multiple of the page size"}
	}
	b, err := unix.Mmap(-1, 0, size,
		toUnixProt(prot),
		unix.MAP_PRIVATE|unix.MAP_ANON|unix.MAP_32BIT,
	)
	if err != nil {
		return nil, &Error{Kind: ErrAllocationFailure, Detail: fmt.Sprintf("mmap: %v", err)}
	}
	base := uintptrOf(b)
	if uint64(base)+uint64(size) > 1<<32 {
		unix.Munmap(b)
		return nil, &Error{Kind: ErrAllocationFailure, Detail: "mapping did not land below 2^32"}
	}
	return &unixRegion{data: b, base: uint32(base)}, nil
}

type unixRegion struct {
	data []byte
	base uint32
}

func (r *unixRegion) Base() uint32  { return r.base }
func (r *unixRegion) Size() int     { return len(r.data) }
func (r *unixRegion) Bytes() []byte { return r.data }

func (r *unixRegion) SetProt(off, size int, prot Prot) error {
	if off < 0 || size < 0 || off+size > len(r.data) {
		return &Error{Kind: ErrAllocationFailure, Detail: "protection sub-range escapes mapping"}
	}
	if err := unix.Mprotect(r.data[off:off+size], toUnixProt(prot)); err != nil {
		return &Error{Kind: ErrAllocationFailure, Detail: fmt.Sprintf("mprotect: %v", err)}
	}
	return nil
}

func (r *unixRegion) Unmap() error {
	if err := unix.Munmap(r.data); err != nil {
		return &Error{Kind: ErrAllocationFailure, Detail: fmt.Sprintf("munmap: %v", err)}
	}
	r.data = nil
	return nil
}

func toUnixProt(p Prot) int {
	var out int
	if p&ProtRead != 0 {
		out |= unix.PROT_READ
	}
	if p&ProtWrite != 0 {
		out |= unix.PROT_WRITE
	}
	if p&ProtExec != 0 {
		out |= unix.PROT_EXEC
	}
	return out
}
