// Package page implements spec.md §3-4.4: the page descriptor and its
// three variants (uninit, anonymous, file-backed), each exposing the
// same four-operation vtable {initialize, swap_in, swap_out, destroy}.
// The shape — a struct holding a vtable interface plus an opaque
// variant payload, total-replaced on transition rather than mutated
// in place (spec.md §9) — mirrors how the teacher's own page-table
// entries separate identity (Vminfo_t) from backing (the pmap), just
// pushed one level further into an explicit dispatch table because
// spec.md names three concrete variants instead of one.
package page

import (
	"defs"
	"frametable"
	"mem"
	"mmu"
	"swap"
	"vfile"
	"vmctx"
)

// / State is a page descriptor's residency state (spec.md §3).
type State int

const (
	Uninit State = iota
	Resident
	Swapped         // anonymous only
	FileNotResident // file-backed only
)

func (s State) String() string {
	switch s {
	case Uninit:
		return "uninit"
	case Resident:
		return "resident"
	case Swapped:
		return "swapped"
	case FileNotResident:
		return "file-not-resident"
	default:
		return "?"
	}
}

// / Kind tags which variant a descriptor currently is, or targets
// / becoming once its Uninit initializer runs.
type Kind int

const (
	KindUninit Kind = iota
	KindAnon
	KindFile
)

// / Marker carries auxiliary flags orthogonal to Kind — spec.md's only
// / named one is STACK, distinguishing stack-growth anonymous pages
// / from ordinary ones. vm's growStack sets it; no other code reads it.
type Marker int

const (
	MarkerNone  Marker = 0
	MarkerStack Marker = 1 << 0
)

// Ops is the per-variant vtable. Every variant implements all four
// methods; the ones that can't legally be reached in a given state
// (Initialize on anon/file, SwapIn/SwapOut on uninit) panic, since
// reaching them is a coordinator bug, not a runtime condition.
type Ops interface {
	Initialize(p *Page_t, kva *mem.Page_t) defs.Err_t
	SwapIn(p *Page_t, kva *mem.Page_t) defs.Err_t
	SwapOut(p *Page_t) bool
	Destroy(p *Page_t)
}

// Initializer is the caller-supplied first-touch routine threaded
// through alloc_page_with_initializer's init_fn/aux (spec.md §4.6.1).
// It reads p's Uninit aux, fills kva, and finishes the transition by
// replacing p's variant payload and vtable — see AnonInitializer and
// FileInitializer below for the two concrete routines this module
// ships.
type Initializer func(p *Page_t, kva *mem.Page_t) defs.Err_t

// / Page_t is one page descriptor: one per virtual page a process has
// / ever requested (spec.md §3). It is owned by exactly one SPT for its
// / whole life, which is why Space/Ctx are set once at construction
// / rather than threaded through every call.
type Page_t struct {
	VAddr    uintptr
	Writable bool
	St       State
	Marker   Marker
	Frame    *frametable.Frame

	space *mmu.AddrSpace
	ctx   *vmctx.Global
	ops   Ops
	// variant holds exactly one of UninitData, AnonData, FileData —
	// swapped as a whole on every state transition, never field-patched
	// in place (spec.md §9).
	variant interface{}
}

// UninitData is the variant payload of a freshly allocated, not-yet-
// materialized page.
type UninitData struct {
	Target Kind
	Init   Initializer
	Aux    interface{}
}

// AnonData is the variant payload of an anonymous page: either it owns
// a swap slot (St == Swapped) or it doesn't (fresh or resident).
type AnonData struct {
	Slot    int
	HasSlot bool
}

// FileData is the variant payload of a file-backed page (spec.md
// §4.4.3): its own reopened handle plus the byte range it maps.
type FileData struct {
	Handle     *vfile.Handle
	Offset     int
	ReadBytes  int
	ZeroBytes  int
	TotalPages int
}

// / VA satisfies frametable.Evictable.
func (p *Page_t) VA() uintptr { return p.VAddr }

// / Space satisfies frametable.Evictable.
func (p *Page_t) Space() *mmu.AddrSpace { return p.space }

// / Kind reports which variant this descriptor currently is.
func (p *Page_t) Kind() Kind {
	switch p.variant.(type) {
	case AnonData:
		return KindAnon
	case FileData:
		return KindFile
	default:
		return KindUninit
	}
}

// / Variant exposes the raw payload for callers (the vm/mmap packages)
// / that need variant-specific fields, e.g. mmap reading TotalPages.
func (p *Page_t) Variant() interface{} { return p.variant }

// / Initialize dispatches to the current vtable's Initialize.
func (p *Page_t) Initialize(kva *mem.Page_t) defs.Err_t {
	return p.ops.Initialize(p, kva)
}

// / SwapIn dispatches to the current vtable's SwapIn.
func (p *Page_t) SwapIn(kva *mem.Page_t) defs.Err_t {
	return p.ops.SwapIn(p, kva)
}

// / SwapOut dispatches to the current vtable's SwapOut; it also
// / satisfies frametable.Evictable so the clock algorithm can call it
// / directly on whatever it finds bound to a frame's Owner field.
func (p *Page_t) SwapOut() bool {
	return p.ops.SwapOut(p)
}

// / Destroy dispatches to the current vtable's Destroy.
func (p *Page_t) Destroy() {
	p.ops.Destroy(p)
}

// / NewUninit constructs a descriptor in the Uninit state, targeting
// / kind once init runs (spec.md §4.6.1 step 3). space and ctx are the
// / address space and global VM context this page will live under for
// / its whole life.
func NewUninit(space *mmu.AddrSpace, ctx *vmctx.Global, va uintptr, writable bool, target Kind, init Initializer, aux interface{}) *Page_t {
	p := &Page_t{VAddr: va, Writable: writable, St: Uninit, space: space, ctx: ctx}
	p.variant = UninitData{Target: target, Init: init, Aux: aux}
	p.ops = uninitOps{}
	return p
}

type uninitOps struct{}

func (uninitOps) Initialize(p *Page_t, kva *mem.Page_t) defs.Err_t {
	u := p.variant.(UninitData)
	return u.Init(p, kva)
}

func (uninitOps) SwapIn(p *Page_t, kva *mem.Page_t) defs.Err_t {
	panic("page: swap_in on an uninit page")
}

func (uninitOps) SwapOut(p *Page_t) bool {
	panic("page: swap_out on an uninit page")
}

func (uninitOps) Destroy(p *Page_t) {
	// aux, if never consumed by Init, is simply dropped here; Go's GC
	// plays the role of the explicit free spec.md §4.6.1 calls for. A
	// file-backed page's reopened handle is closed first, since the page
	// owns it whether or not it was ever faulted in.
	if aux, ok := p.variant.(UninitData).Aux.(*FileAux); ok {
		aux.Handle.Close()
	}
}

// / AnonInitializer is the first-touch routine for plain anonymous
// / pages (spec.md §4.4.1: "for anon: zero the frame"). It takes no aux.
func AnonInitializer(p *Page_t, kva *mem.Page_t) defs.Err_t {
	for i := range kva {
		kva[i] = 0
	}
	p.variant = AnonData{}
	p.ops = anonOps{}
	p.St = Resident
	return 0
}

type anonOps struct{}

func (anonOps) Initialize(p *Page_t, kva *mem.Page_t) defs.Err_t {
	panic("page: anon page re-initialized")
}

// SwapIn implements the resolved open question from spec.md §9: a
// fresh anonymous page with no assigned slot is zero-filled rather
// than treated as an error.
func (anonOps) SwapIn(p *Page_t, kva *mem.Page_t) defs.Err_t {
	a := p.variant.(AnonData)
	if !a.HasSlot {
		for i := range kva {
			kva[i] = 0
		}
		return 0
	}
	p.ctx.Swap.Read(swap.Slot(a.Slot), kva)
	p.ctx.Swap.Release(swap.Slot(a.Slot))
	p.variant = AnonData{}
	return 0
}

func (anonOps) SwapOut(p *Page_t) bool {
	slot, ok := p.ctx.Swap.Allocate()
	if !ok {
		return false
	}
	p.ctx.Swap.Write(slot, p.Frame.Kva)
	p.space.Clear(p.VAddr)
	p.variant = AnonData{Slot: int(slot), HasSlot: true}
	p.Frame = nil
	p.St = Swapped
	return true
}

func (anonOps) Destroy(p *Page_t) {
	switch p.St {
	case Resident:
		p.space.Clear(p.VAddr)
		p.ctx.Pool.FreeUserPage(p.Frame.Kva)
		p.Frame = nil
	case Swapped:
		a := p.variant.(AnonData)
		if a.HasSlot {
			p.ctx.Swap.Release(swap.Slot(a.Slot))
		}
	}
}

// FileInitializer is the first-touch routine for file-backed pages
// (spec.md §4.4.1: "for files: read(...); zero-pad"). aux must be a
// *FileAux describing the byte range this page covers.
func FileInitializer(p *Page_t, kva *mem.Page_t) defs.Err_t {
	u := p.variant.(UninitData)
	aux := u.Aux.(*FileAux)
	n := aux.Handle.ReadAt(kva[:aux.ReadBytes], aux.Offset)
	if n != aux.ReadBytes {
		return -defs.EIO
	}
	for i := aux.ReadBytes; i < len(kva); i++ {
		kva[i] = 0
	}
	p.variant = FileData{
		Handle:     aux.Handle,
		Offset:     aux.Offset,
		ReadBytes:  aux.ReadBytes,
		ZeroBytes:  aux.ZeroBytes,
		TotalPages: aux.TotalPages,
	}
	p.ops = fileOps{}
	p.St = Resident
	return 0
}

// FileAux is the aux payload NewUninit(..., KindFile, FileInitializer,
// aux) expects: the reopened handle and this page's slice of the
// mapped file (spec.md §4.7 step 3).
type FileAux struct {
	Handle     *vfile.Handle
	Offset     int
	ReadBytes  int
	ZeroBytes  int
	TotalPages int
}

type fileOps struct{}

func (fileOps) Initialize(p *Page_t, kva *mem.Page_t) defs.Err_t {
	panic("page: file page re-initialized")
}

func (fileOps) SwapIn(p *Page_t, kva *mem.Page_t) defs.Err_t {
	fd := p.variant.(FileData)
	n := fd.Handle.ReadAt(kva[:fd.ReadBytes], fd.Offset)
	if n != fd.ReadBytes {
		return -defs.EIO
	}
	for i := fd.ReadBytes; i < len(kva); i++ {
		kva[i] = 0
	}
	return 0
}

func (fileOps) SwapOut(p *Page_t) bool {
	fd := p.variant.(FileData)
	if p.space.Dirty(p.VAddr) {
		fd.Handle.WriteAt(p.Frame.Kva[:fd.ReadBytes], fd.Offset)
		p.space.SetDirty(p.VAddr, false)
	}
	p.space.Clear(p.VAddr)
	p.Frame = nil
	p.St = FileNotResident
	return true
}

func (fileOps) Destroy(p *Page_t) {
	fd := p.variant.(FileData)
	if p.St == Resident {
		if p.space.Dirty(p.VAddr) {
			fd.Handle.WriteAt(p.Frame.Kva[:fd.ReadBytes], fd.Offset)
		}
		p.space.Clear(p.VAddr)
		p.ctx.Pool.FreeUserPage(p.Frame.Kva)
		p.Frame = nil
	}
	fd.Handle.Close()
}
