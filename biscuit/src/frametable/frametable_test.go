package frametable

import (
	"testing"

	"mem"
	"mmu"
)

// fakeOwner is a minimal Evictable for exercising the clock algorithm
// without pulling in the page package (which itself depends on
// frametable, so a real page.Page_t can't be used here).
type fakeOwner struct {
	va      uintptr
	space   *mmu.AddrSpace
	fail    bool
	evicted bool
}

func (o *fakeOwner) VA() uintptr          { return o.va }
func (o *fakeOwner) Space() *mmu.AddrSpace { return o.space }
func (o *fakeOwner) SwapOut() bool {
	if o.fail {
		return false
	}
	o.space.Clear(o.va)
	o.evicted = true
	return true
}

func TestAcquireFromPool(t *testing.T) {
	pool := mem.NewPool(2)
	tbl := New()
	f, ok := tbl.Acquire(pool)
	if !ok {
		t.Fatal("expected acquire to succeed from a fresh pool")
	}
	if tbl.Len() != 1 {
		t.Fatalf("frame table len = %d, want 1", tbl.Len())
	}
	if f.Owner != nil {
		t.Fatal("freshly acquired frame must start ownerless")
	}
}

func TestEvictionPicksUnaccessedFrame(t *testing.T) {
	pool := mem.NewPool(1)
	tbl := New()
	space := mmu.New()

	f, _ := tbl.Acquire(pool)
	owner := &fakeOwner{va: 0x1000, space: space}
	f.Owner = owner
	space.Install(owner.va, f.Kva, true)
	space.SetAccessed(owner.va, false)

	f2, ok := tbl.Acquire(pool)
	if !ok {
		t.Fatal("expected eviction to free a frame")
	}
	if !owner.evicted {
		t.Fatal("expected the sole frame's owner to be evicted")
	}
	if f2.Owner != nil {
		t.Fatal("reclaimed frame must start ownerless")
	}
	if tbl.Len() != 1 {
		t.Fatalf("frame table len after eviction = %d, want 1 (reclaimed frame stays tracked)", tbl.Len())
	}
	if f2 != f {
		t.Fatal("expected the victim's own frame descriptor to be reused in place")
	}
}

func TestEvictionSkipsAccessedThenClears(t *testing.T) {
	pool := mem.NewPool(1)
	tbl := New()
	space := mmu.New()

	f, _ := tbl.Acquire(pool)
	owner := &fakeOwner{va: 0x2000, space: space}
	f.Owner = owner
	space.Install(owner.va, f.Kva, true)
	space.SetAccessed(owner.va, true) // accessed: first pass must skip it

	if _, ok := tbl.Acquire(pool); !ok {
		t.Fatal("expected eviction to eventually succeed after clearing A bit")
	}
	if space.Accessed(owner.va) {
		t.Fatal("expected the accessed bit to have been cleared during the scan")
	}
}

func TestEvictionSkipsFailingVictim(t *testing.T) {
	pool := mem.NewPool(2)
	tbl := New()
	space := mmu.New()

	f1, _ := tbl.Acquire(pool)
	bad := &fakeOwner{va: 0x3000, space: space, fail: true}
	f1.Owner = bad
	space.Install(bad.va, f1.Kva, true)

	f2, _ := tbl.Acquire(pool)
	good := &fakeOwner{va: 0x4000, space: space}
	f2.Owner = good
	space.Install(good.va, f2.Kva, true)

	if _, ok := tbl.Acquire(pool); !ok {
		t.Fatal("expected eviction to succeed by skipping the failing victim")
	}
	if bad.evicted {
		t.Fatal("the failing victim must not be marked evicted")
	}
	if !good.evicted {
		t.Fatal("expected the other victim to be evicted instead")
	}
}

func TestUnlink(t *testing.T) {
	pool := mem.NewPool(2)
	tbl := New()
	f1, _ := tbl.Acquire(pool)
	f2, _ := tbl.Acquire(pool)
	tbl.Unlink(f1)
	if tbl.Len() != 1 {
		t.Fatalf("len after unlink = %d, want 1", tbl.Len())
	}
	tbl.Unlink(f2)
	if tbl.Len() != 0 {
		t.Fatalf("len after second unlink = %d, want 0", tbl.Len())
	}
}

func TestUnlinkOfUntrackedFramePanics(t *testing.T) {
	tbl := New()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic unlinking an untracked frame")
		}
	}()
	tbl.Unlink(&Frame{})
}
