//go:build linux && amd64

package lowmem

import "unsafe"

// uintptrOf returns the address of the first byte of b. b must be non-empty
// and must not be moved by the garbage collector for the lifetime of the
// returned value — true for mmap-backed slices, which Go's allocator never
// owns or relocates.
func uintptrOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}
