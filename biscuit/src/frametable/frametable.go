// Package frametable implements spec.md §4.2: the process-wide registry
// of physical frames backing resident pages, and the second-chance
// (clock) replacement policy that evicts one of them under pressure.
//
// Every method here assumes the caller already holds the single global
// vm lock (spec.md §5) — this package does no locking of its own, the
// same Lockassert-by-convention discipline
// Oichkatzelesfrettschen-biscuit's vm.Vm_t uses for pmap mutation.
package frametable

import (
	"mem"
	"mmu"
)

// / Evictable is implemented by whatever currently owns a frame (a
// / page.Page_t, in practice). The clock algorithm only needs to ask a
// / victim where it lives and to make it give up its frame.
type Evictable interface {
	VA() uintptr
	Space() *mmu.AddrSpace
	// SwapOut moves this page's contents out of its frame (to swap, or
	// written back to its file) and clears its MMU mapping. It returns
	// false if the move itself failed (e.g. swap exhausted), in which
	// case the frame stays resident and the clock keeps scanning.
	SwapOut() bool
}

// / Frame is one physical user frame. Owner is nil only in the narrow
// / window between Acquire returning and the coordinator binding a page
// / to it (spec.md invariant 3 holds everywhere else).
type Frame struct {
	Kva   *mem.Page_t
	Owner Evictable
}

// / Table is the frame table: an ordered sequence of frames plus the
// / clock hand cursor.
type Table struct {
	frames []*Frame
	hand   int
}

// / New returns an empty frame table.
func New() *Table {
	return &Table{}
}

// / Len returns the number of frames currently tracked (resident pages).
func (t *Table) Len() int {
	return len(t.frames)
}

// / Acquire obtains a frame for a fresh page: first from the pool, or
// / by evicting a victim if the pool is exhausted. The returned frame
// / has Owner == nil; the caller must bind it before releasing the vm
// / lock (spec.md §4.2 claim_page).
func (t *Table) Acquire(pool *mem.Pool) (*Frame, bool) {
	if pg, ok := pool.AllocUserPage(); ok {
		f := &Frame{Kva: pg}
		t.frames = append(t.frames, f)
		return f, true
	}
	return t.evict(pool)
}

// evict runs the clock algorithm: a frame with a clear accessed bit is
// selected, its owner's SwapOut is invoked, and on success the frame
// (now ownerless) is returned for reuse. Frames whose SwapOut fails are
// skipped and the scan continues; if every frame fails, allocation
// fails. The scan clears accessed bits as it passes over them, so it is
// guaranteed to find every frame unaccessed within one full sweep —
// matching spec.md's "wrap around once" description.
func (t *Table) evict(pool *mem.Pool) (*Frame, bool) {
	n := len(t.frames)
	if n == 0 {
		return nil, false
	}
	failed := make(map[int]bool, n)
	// Bounded at 2n+1: one sweep to clear every accessed bit, one more
	// to select among now-unaccessed frames, plus one to notice nothing
	// is left to try. A true infinite loop here would be a logic bug.
	for attempts := 0; attempts < 2*n+1; attempts++ {
		if len(failed) == n {
			return nil, false
		}
		idx := t.hand
		t.hand = (t.hand + 1) % len(t.frames)
		if failed[idx] {
			continue
		}
		f := t.frames[idx]
		as := f.Owner.Space()
		va := f.Owner.VA()
		if as.Accessed(va) {
			as.SetAccessed(va, false)
			continue
		}
		if !f.Owner.SwapOut() {
			failed[idx] = true
			continue
		}
		// The victim's slot in t.frames is reused in place: the frame
		// descriptor stays in the table (spec invariant 3, §4.2), only
		// its Owner is cleared until the caller binds the new page.
		f.Owner = nil
		return f, true
	}
	return nil, false
}

// / Unlink removes a specific frame from the table without touching the
// / physical pool — callers that are about to call pool.FreeUserPage
// / themselves (page destruction outside of eviction) use this.
func (t *Table) Unlink(target *Frame) {
	for i, f := range t.frames {
		if f == target {
			t.removeAt(i)
			return
		}
	}
	panic("frametable: unlink of untracked frame")
}

func (t *Table) removeAt(idx int) *Frame {
	f := t.frames[idx]
	t.frames = append(t.frames[:idx], t.frames[idx+1:]...)
	if len(t.frames) == 0 {
		t.hand = 0
	} else {
		if t.hand > idx {
			t.hand--
		}
		t.hand %= len(t.frames)
	}
	return f
}
