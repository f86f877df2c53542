package elf32

import "bytes"

// StringTable is a view over a STRTAB section's bytes, keyed by byte offset.
type StringTable struct {
	data []byte
}

// GetString returns the NUL-terminated string starting at offset.
func (s StringTable) GetString(offset Word) (string, error) {
	if offset >= uint32(len(s.data)) {
		return "", &Error{Kind: ErrOutOfRange, Detail: "string table offset exceeds table size"}
	}
	rest := s.data[offset:]
	if i := bytes.IndexByte(rest, 0); i >= 0 {
		return string(rest[:i]), nil
	}
	return string(rest), nil
}
