package loader

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadFileReturnsContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obj.so")
	want := []byte{0x7F, 'E', 'L', 'F', 1, 2, 3, 4}
	if err := os.WriteFile(path, want, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestReadFileFailsOnMissingPath(t *testing.T) {
	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.so")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestOpenMapsFileContentsReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obj.so")
	want := []byte{0x7F, 'E', 'L', 'F', 1, 2, 3, 4, 5, 6, 7, 8}
	if err := os.WriteFile(path, want, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	mapping, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer mapping.Close()

	if got := mapping.Bytes(); string(got) != string(want) {
		t.Fatalf("expected mapped contents %v, got %v", want, got)
	}
}

func TestOpenFailsOnEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.so")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Open(path); err == nil {
		t.Fatal("expected error for empty file")
	}
}

func TestOpenFailsOnMissingPath(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.so")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
