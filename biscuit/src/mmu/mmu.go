// Package mmu is the adaptor spec.md §4.1 calls for: a thin wrapper
// around "the" hardware page table that the VM core talks to instead of
// touching page-table bits directly. Real x86-64 hardware walks four
// page-table levels (mem.Pa_t's PTE bits, pml4 depth = 4); this package
// collapses that walk into a single map so the replacement policy and
// fault handler can be exercised against a simulated MMU in ordinary
// `go test`, exactly as spec.md's rationale for this layer asks for.
package mmu

import (
	"sync"

	"mem"
)

type entry_t struct {
	kva      *mem.Page_t
	writable bool
	accessed bool
	dirty    bool
}

// / AddrSpace simulates one process's page table (its "pml4"). Every VM
// / entry point that needs to manipulate mappings takes one of these
// / instead of a raw cr3 value.
type AddrSpace struct {
	mu      sync.Mutex
	entries map[uintptr]*entry_t
}

// / New allocates an empty address space, analogous to installing a
// / fresh pml4 page.
func New() *AddrSpace {
	return &AddrSpace{entries: make(map[uintptr]*entry_t)}
}

// / Install atomically creates a present mapping from va to kva. It
// / returns false only when the adaptor itself is out of bookkeeping
// / space — on real hardware that's a page-table-level allocation
// / failure; here it cannot happen, but the signature is kept so callers
// / handle the failure path spec.md §4.1 documents.
func (as *AddrSpace) Install(va uintptr, kva *mem.Page_t, writable bool) bool {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.entries[va] = &entry_t{kva: kva, writable: writable, accessed: false, dirty: false}
	return true
}

// / Clear removes the mapping for va. It is idempotent: clearing an
// / already-absent va is a no-op, matching spec.md §4.1.
func (as *AddrSpace) Clear(va uintptr) {
	as.mu.Lock()
	defer as.mu.Unlock()
	delete(as.entries, va)
}

// / Translate returns the frame mapped at va, if any.
func (as *AddrSpace) Translate(va uintptr) (*mem.Page_t, bool) {
	as.mu.Lock()
	defer as.mu.Unlock()
	e, ok := as.entries[va]
	if !ok {
		return nil, false
	}
	return e.kva, true
}

// / Mapped reports whether any mapping exists at va, without returning
// / the frame.
func (as *AddrSpace) Mapped(va uintptr) bool {
	as.mu.Lock()
	defer as.mu.Unlock()
	_, ok := as.entries[va]
	return ok
}

// / Writable reports whether the mapping at va (if any) permits user
// / writes.
func (as *AddrSpace) Writable(va uintptr) bool {
	as.mu.Lock()
	defer as.mu.Unlock()
	e, ok := as.entries[va]
	return ok && e.writable
}

// / Accessed returns the A bit for va. A non-present va reads as false.
func (as *AddrSpace) Accessed(va uintptr) bool {
	as.mu.Lock()
	defer as.mu.Unlock()
	e, ok := as.entries[va]
	return ok && e.accessed
}

// / SetAccessed sets or clears the A bit for va. It is a no-op if va is
// / not mapped (the clock hand may race a concurrent unmap).
func (as *AddrSpace) SetAccessed(va uintptr, v bool) {
	as.mu.Lock()
	defer as.mu.Unlock()
	if e, ok := as.entries[va]; ok {
		e.accessed = v
	}
}

// / Dirty returns the D bit for va.
func (as *AddrSpace) Dirty(va uintptr) bool {
	as.mu.Lock()
	defer as.mu.Unlock()
	e, ok := as.entries[va]
	return ok && e.dirty
}

// / SetDirty sets or clears the D bit for va.
func (as *AddrSpace) SetDirty(va uintptr, v bool) {
	as.mu.Lock()
	defer as.mu.Unlock()
	if e, ok := as.entries[va]; ok {
		e.dirty = v
	}
}

// / Touch marks va as both accessed and, if write is true, dirty. Tests
// / use this to simulate a CPU access; try_handle_fault's own callers
// / would instead rely on the real MMU setting these bits on every
// / instruction that touches the page.
func (as *AddrSpace) Touch(va uintptr, write bool) {
	as.mu.Lock()
	defer as.mu.Unlock()
	e, ok := as.entries[va]
	if !ok {
		return
	}
	e.accessed = true
	if write {
		e.dirty = true
	}
}
