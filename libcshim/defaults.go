package libcshim

// abiPrologue32To64 is the prologue every shim wrapping a one-argument cdecl
// libc function needs: cdecl passes its argument on the stack at
// 4(%esp)/12(%esp) (the extra offset accounts for the lcall's return
// address and selector, matching the original wrapper's fixed layout), and
// %edi carries it into the 64-bit call as the first argument under the
// System V AMD64 ABI.
var abiPrologue32To64 = []byte{0x8B, 0x7C, 0x24, 0x0C} // mov 12(%esp), %edi

// DefaultDescriptors returns the standard abort/abs/atoi shims, each
// pointing at the real host libc function reachable at the given address.
// targets may name "abort", "abs", and "atoi"; any missing entry is
// skipped rather than erroring, so callers can shim a subset.
func DefaultDescriptors(targets map[string]uint64) []Descriptor {
	var out []Descriptor
	if addr, ok := targets["abort"]; ok {
		out = append(out, Descriptor{Name: "abort", Target: addr})
	}
	if addr, ok := targets["abs"]; ok {
		out = append(out, Descriptor{Name: "abs", Target: addr, Prologue: abiPrologue32To64})
	}
	if addr, ok := targets["atoi"]; ok {
		out = append(out, Descriptor{Name: "atoi", Target: addr, Prologue: abiPrologue32To64})
	}
	return out
}
