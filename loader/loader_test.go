package loader

import (
	"encoding/binary"
	"testing"

	"github.com/e32on64/e32on64/internal/fixture"
	"github.com/e32on64/e32on64/lowmem/lowmemtest"
)

const relJmpSlot = 7 // R_386_JMP_SLOT

func TestNewLoadsAndExportsSymbols(t *testing.T) {
	raw := fixture.Build(fixture.Options{
		Exports: []fixture.Export{{Name: "foo", Value: 0x40}},
	})
	alloc := lowmemtest.NewFakeAllocator(0x10000000)

	l, err := New(raw, alloc, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	addr, err := l.GetSym("foo")
	if err != nil {
		t.Fatalf("GetSym: %v", err)
	}
	if want := l.Base() + 0x40; addr != want {
		t.Fatalf("expected foo at %#x, got %#x", want, addr)
	}
}

func TestNewResolvesExternalImport(t *testing.T) {
	raw := fixture.Build(fixture.Options{
		Imports: []fixture.Import{{Offset: 0x10, Name: "bar", Type: relJmpSlot}},
	})
	alloc := lowmemtest.NewFakeAllocator(0x11000000)

	called := false
	opts := Options{
		ExternalResolve: func(name string) (uint32, bool) {
			if name == "bar" {
				called = true
				return 0xCAFEBABE, true
			}
			return 0, false
		},
	}

	l, err := New(raw, alloc, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	if !called {
		t.Fatal("expected external resolver to be consulted for undefined-in-object import")
	}
}

func TestNewResolveOrderPrefersExternalOverOwnExports(t *testing.T) {
	raw := fixture.Build(fixture.Options{
		Exports: []fixture.Export{{Name: "shared", Value: 0x40}},
		Imports: []fixture.Import{{Offset: 0x10, Name: "shared", Type: relJmpSlot}},
	})
	alloc := lowmemtest.NewFakeAllocator(0x14000000)

	externalAddr := uint32(0xDEAD0000)
	opts := Options{
		ExternalResolve: func(name string) (uint32, bool) {
			if name == "shared" {
				return externalAddr, true
			}
			return 0, false
		},
	}

	l, err := New(raw, alloc, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	got := binary.LittleEndian.Uint32(l.image.Bytes()[0x10:])
	if got != externalAddr {
		t.Fatalf("expected caller-supplied resolver to take precedence over the object's own export (%#x), got %#x", externalAddr, got)
	}
}

func TestNewFailsOnBadMagic(t *testing.T) {
	raw := fixture.Build(fixture.Options{})
	raw[0] = 0
	alloc := lowmemtest.NewFakeAllocator(0x12000000)
	_, err := New(raw, alloc, Options{})
	if err == nil {
		t.Fatal("expected open-failed error for bad magic")
	}
}

func TestNewUnresolvedImportFailsByDefault(t *testing.T) {
	raw := fixture.Build(fixture.Options{
		Imports: []fixture.Import{{Offset: 0x10, Name: "missing", Type: relJmpSlot}},
	})
	alloc := lowmemtest.NewFakeAllocator(0x13000000)
	_, err := New(raw, alloc, Options{})
	if err == nil {
		t.Fatal("expected open-failed error from unresolved import")
	}
}
