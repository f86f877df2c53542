package dso

import (
	"github.com/e32on64/e32on64/elf32"
	"github.com/e32on64/e32on64/lowmem"
)

// Protect computes, for every page of img, the union of the R/W/X flags of
// every PT_LOAD segment covering that page, then applies the result via one
// SetProt call per maximal run of pages sharing the same protection. Pages
// not covered by any segment (gaps between segments) are set to ProtNone.
// pageSize must be the
// same page size the image was built with (alloc.PageSize() in Build).
func Protect(p *elf32.Parser, img *Image, pageSize int) error {
	size := img.Size()
	if size == 0 {
		return nil
	}

	pageCount := size / pageSize
	if size%pageSize != 0 {
		pageCount++
	}
	pageFlags := make([]elf32.ProgFlags, pageCount)

	for ph := range p.ProgramHeaders() {
		if ph.Type != elf32.PTLoad {
			continue
		}
		start := int(ph.Vaddr) / pageSize
		end := (int(ph.Vaddr+ph.Memsz) + pageSize - 1) / pageSize
		for i := start; i < end && i < pageCount; i++ {
			pageFlags[i] |= ph.Flags
		}
	}

	region := img.Region()
	i := 0
	for i < pageCount {
		j := i + 1
		for j < pageCount && pageFlags[j] == pageFlags[i] {
			j++
		}
		prot := toLowmemProt(pageFlags[i])
		off := i * pageSize
		runSize := (j - i) * pageSize
		if off+runSize > size {
			runSize = size - off
		}
		if runSize > 0 {
			if err := region.SetProt(off, runSize, prot); err != nil {
				return err
			}
		}
		i = j
	}
	return nil
}

func toLowmemProt(f elf32.ProgFlags) lowmem.Prot {
	var p lowmem.Prot
	if f.Read() {
		p |= lowmem.ProtRead
	}
	if f.Write() {
		p |= lowmem.ProtWrite
	}
	if f.Exec() {
		p |= lowmem.ProtExec
	}
	return p
}
