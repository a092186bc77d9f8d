package spt

import (
	"testing"

	"frametable"
	"mem"
	"mmu"
	"page"
	"swap"
	"vmctx"
)

func newCtx() *vmctx.Global {
	pool := mem.NewPool(4)
	ft := frametable.New()
	dev := swap.NewMemDevice(4 * swap.SectorsPerSlot)
	return vmctx.New(pool, ft, swap.NewAllocator(dev))
}

func TestInsertFindRejectsDuplicate(t *testing.T) {
	tbl := New(1, 2)
	space := mmu.New()
	ctx := newCtx()
	p := page.NewUninit(space, ctx, 0x1000, true, page.KindAnon, page.AnonInitializer, nil)

	if !tbl.Insert(p) {
		t.Fatal("expected first insert to succeed")
	}
	dup := page.NewUninit(space, ctx, 0x1000, true, page.KindAnon, page.AnonInitializer, nil)
	if tbl.Insert(dup) {
		t.Fatal("expected duplicate va insert to fail")
	}
	got, ok := tbl.Find(0x1000)
	if !ok || got != p {
		t.Fatal("Find did not return the originally inserted descriptor")
	}
}

func TestEachIsDeterministicInsertionOrder(t *testing.T) {
	tbl := New(1, 2)
	space := mmu.New()
	ctx := newCtx()
	vas := []uintptr{0x5000, 0x1000, 0x9000, 0x2000}
	for _, va := range vas {
		tbl.Insert(page.NewUninit(space, ctx, va, true, page.KindAnon, page.AnonInitializer, nil))
	}

	var seen []uintptr
	tbl.Each(func(va uintptr, p *page.Page_t) {
		seen = append(seen, va)
	})
	if len(seen) != len(vas) {
		t.Fatalf("Each visited %d entries, want %d", len(seen), len(vas))
	}
	for i := range vas {
		if seen[i] != vas[i] {
			t.Fatalf("Each()[%d] = %#x, want %#x (insertion order)", i, seen[i], vas[i])
		}
	}
}

func TestRemoveDestroysAndDrops(t *testing.T) {
	tbl := New(1, 2)
	space := mmu.New()
	ctx := newCtx()
	p := page.NewUninit(space, ctx, 0x3000, true, page.KindAnon, page.AnonInitializer, nil)
	var kva mem.Page_t
	p.Initialize(&kva)
	frame, _ := ctx.Frames.Acquire(ctx.Pool)
	p.Frame = frame
	space.Install(p.VAddr, frame.Kva, true)
	tbl.Insert(p)

	freeBefore := ctx.Pool.Free()
	tbl.Remove(0x3000)
	if _, ok := tbl.Find(0x3000); ok {
		t.Fatal("expected descriptor gone after Remove")
	}
	if tbl.Len() != 0 {
		t.Fatalf("Len = %d, want 0", tbl.Len())
	}
	if ctx.Pool.Free() != freeBefore+1 {
		t.Fatal("expected Remove's Destroy to return the frame to the pool")
	}
}

func TestKillClearsButTableStaysUsable(t *testing.T) {
	tbl := New(1, 2)
	space := mmu.New()
	ctx := newCtx()
	for _, va := range []uintptr{0x1000, 0x2000, 0x3000} {
		tbl.Insert(page.NewUninit(space, ctx, va, true, page.KindAnon, page.AnonInitializer, nil))
	}
	tbl.Kill()
	if tbl.Len() != 0 {
		t.Fatalf("Len after Kill = %d, want 0", tbl.Len())
	}
	if !tbl.Insert(page.NewUninit(space, ctx, 0x1000, true, page.KindAnon, page.AnonInitializer, nil)) {
		t.Fatal("expected table to be reusable after Kill")
	}
}
