// Package spt implements the supplemental page table (spec.md §3, §4.5):
// the per-thread authoritative record of every page descriptor a
// process has ever requested, keyed by page-aligned virtual address.
// It is a thin wrapper over hashtable.Hashtable_t, the way the
// teacher's own page directory is a thin wrapper over a raw page-table
// walk — the interesting policy (destroy ordering, write-back on
// teardown) lives here, not in the hash table itself.
package spt

import (
	"hashtable"
	"page"
)

// / bucketCount is a fixed starting size; Hashtable_t's chains degrade
// / gracefully (it tracks maxchain internally) so this is a tuning
// / knob, not a correctness one.
const bucketCount = 64

// / Table is one process's SPT. It is only ever touched by its owning
// / thread (spec.md §5's "per-SPT exclusivity"), so it does no locking
// / of its own beyond what Hashtable_t already provides for Get/Set.
type Table struct {
	ht *hashtable.Hashtable_t
	// order records va insertion order so Copy (fork) and Kill
	// (teardown) can walk deterministically — spec.md §4.6.4 requires
	// "deterministic insertion order" and Hashtable_t.Elems explicitly
	// disclaims any ordering guarantee of its own.
	order []uintptr
}

// / New allocates an empty SPT. k0/k1 seed the backing hashtable's
// / siphash key (vm.NewAddrSpace passes through the pair its caller
// / chose for that address space).
func New(k0, k1 uint64) *Table {
	return &Table{ht: hashtable.MkHash(bucketCount, k0, k1)}
}

// / Find is find(va): the descriptor at va, if the SPT has one.
func (t *Table) Find(va uintptr) (*page.Page_t, bool) {
	v, ok := t.ht.Get(int(va))
	if !ok {
		return nil, false
	}
	return v.(*page.Page_t), true
}

// / Insert is insert(page): it fails (returns false) if va is already
// / occupied, per spec.md invariant 6. On success the descriptor is
// / also appended to the insertion-order index.
func (t *Table) Insert(p *page.Page_t) bool {
	if !t.ht.Set(int(p.VA()), p) {
		return false
	}
	t.order = append(t.order, p.VA())
	return true
}

// / Remove is remove(page): it destroys the descriptor at va (calling
// / its vtable's Destroy) and drops it from the SPT. It is a no-op if
// / va is absent.
func (t *Table) Remove(va uintptr) {
	p, ok := t.Find(va)
	if !ok {
		return
	}
	p.Destroy()
	t.ht.Del(int(va))
	t.removeFromOrder(va)
}

func (t *Table) removeFromOrder(va uintptr) {
	for i, v := range t.order {
		if v == va {
			t.order = append(t.order[:i], t.order[i+1:]...)
			return
		}
	}
}

// / Each walks every descriptor in deterministic insertion order — the
// / ordering spt_copy's fork walk and spt_kill's teardown walk both
// / depend on (spec.md §4.6.4, §4.5).
func (t *Table) Each(f func(va uintptr, p *page.Page_t)) {
	for _, va := range t.order {
		if p, ok := t.Find(va); ok {
			f(va, p)
		}
	}
}

// / Len reports how many descriptors the SPT currently holds.
func (t *Table) Len() int {
	return len(t.order)
}

// / Kill is spt_kill: destroy every descriptor (writing back dirty
// / file-backed pages as a side effect of Destroy), then clear the
// / backing buckets without discarding them, so the Table can be
// / reused within the same thread's exec (spec.md §4.5).
func (t *Table) Kill() {
	for _, va := range t.order {
		if p, ok := t.Find(va); ok {
			p.Destroy()
		}
	}
	t.ht.Clear()
	t.order = t.order[:0]
}
