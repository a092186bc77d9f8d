// Package mmap implements spec.md §4.7: memory-mapped file regions,
// built on top of the vm coordinator's alloc_page_with_initializer and
// the file-backed page variant. It owns no state of its own — every
// region it creates is just an ordinary run of File-kind descriptors
// in the caller's SPT, torn down the same way any other SPT entry is.
package mmap

import (
	"defs"
	"mem"
	"page"
	"vfile"
	"vm"
	"vmctx"
)

// / Mmap is mmap(va, length, writable, file, offset) (spec.md §4.7).
// / It splits [offset, offset+read_bytes) across total_pages
// / consecutive descriptors, each with its own reopened file handle, and
// / undoes every earlier page on any failure — including a collision
// / with an existing SPT entry, which aborts the whole mapping rather
// / than allocating around it.
func Mmap(as *vm.AddrSpace, ctx *vmctx.Global, va uintptr, length int, writable bool, file *vfile.Handle, offset int) (uintptr, defs.Err_t) {
	if length <= 0 {
		return 0, -defs.EINVAL
	}
	base := mem.Rounddown(va)
	totalPages := (length + mem.PGSIZE - 1) / mem.PGSIZE

	readBytes := file.Length() - offset
	if readBytes < 0 {
		readBytes = 0
	}
	if readBytes > length {
		readBytes = length
	}

	allocated := make([]uintptr, 0, totalPages)
	rollback := func() {
		for _, pva := range allocated {
			as.SPT.Remove(pva)
		}
	}

	remaining := readBytes
	curOffset := offset
	for i := 0; i < totalPages; i++ {
		pva := base + uintptr(i*mem.PGSIZE)
		if _, ok := as.SPT.Find(pva); ok {
			rollback()
			return 0, -defs.EEXIST
		}

		pageRead := remaining
		if pageRead > mem.PGSIZE {
			pageRead = mem.PGSIZE
		}
		if pageRead < 0 {
			pageRead = 0
		}
		pageZero := mem.PGSIZE - pageRead

		aux := &page.FileAux{
			Handle:     file.Reopen(),
			Offset:     curOffset,
			ReadBytes:  pageRead,
			ZeroBytes:  pageZero,
			TotalPages: totalPages,
		}
		if err := vm.AllocPageWithInitializer(as, ctx, page.KindFile, pva, writable, page.FileInitializer, aux); err != 0 {
			rollback()
			return 0, err
		}
		allocated = append(allocated, pva)
		remaining -= pageRead
		curOffset += pageRead
	}
	return base, 0
}

// / Munmap is munmap(va) (spec.md §4.7): it reads total_pages off the
// / descriptor at va and destroys every page in the mapping — each
// / destroy writes back dirty contents, closes that page's own file
// / handle, clears its MMU mapping, and frees its frame.
func Munmap(as *vm.AddrSpace, va uintptr) defs.Err_t {
	base := mem.Rounddown(va)
	p, ok := as.SPT.Find(base)
	if !ok {
		return -defs.EFAULT
	}
	totalPages, ok := totalPagesOf(p)
	if !ok {
		return -defs.EINVAL
	}
	for i := 0; i < totalPages; i++ {
		pva := base + uintptr(i*mem.PGSIZE)
		as.SPT.Remove(pva)
	}
	return 0
}

// totalPagesOf reads a file-backed descriptor's total_pages regardless
// of whether it has ever been faulted in: an untouched base page is
// still UninitData (its FileAux carries total_pages), while a claimed
// one has already been promoted to FileData by FileInitializer.
func totalPagesOf(p *page.Page_t) (int, bool) {
	switch v := p.Variant().(type) {
	case page.FileData:
		return v.TotalPages, true
	case page.UninitData:
		if v.Target != page.KindFile {
			return 0, false
		}
		aux, ok := v.Aux.(*page.FileAux)
		if !ok {
			return 0, false
		}
		return aux.TotalPages, true
	default:
		return 0, false
	}
}
