package loader

import (
	"os"

	"golang.org/x/sys/unix"
)

// FileMapping is a read-only memory-mapped view of a DSO file on disk — the
// file image New parses, not the relocated runtime image dso.Build
// constructs from it. Close releases the mapping; nothing touches it once
// New has copied out the segments and symbol data it needs.
type FileMapping struct {
	data []byte
}

// Open maps path read-only for New to consume, mirroring the original
// loader's smart_fd-plus-mmap_region pair: a file descriptor opened only
// long enough to establish the mapping, then closed immediately, since the
// mapping itself keeps the pages resident afterward.
func Open(path string) (*FileMapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &Error{Kind: ErrOpenFailed, Detail: err.Error()}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &Error{Kind: ErrOpenFailed, Detail: err.Error()}
	}
	size := info.Size()
	if size == 0 {
		return nil, &Error{Kind: ErrOpenFailed, Detail: "empty file"}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, &Error{Kind: ErrOpenFailed, Detail: err.Error()}
	}
	return &FileMapping{data: data}, nil
}

// Bytes returns the mapped file contents, suitable for New's raw argument.
// The slice is only valid until Close.
func (m *FileMapping) Bytes() []byte { return m.data }

// Close unmaps the file view. The mapping must not be used afterward.
func (m *FileMapping) Close() error {
	return unix.Munmap(m.data)
}

// ReadFile opens path and reads its full contents into an owned buffer,
// for callers such as tests and fixtures that want a plain byte slice
// instead of a mapping to release.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Kind: ErrOpenFailed, Detail: err.Error()}
	}
	return data, nil
}
