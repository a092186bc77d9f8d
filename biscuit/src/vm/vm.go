// Package vm is the VM coordinator (spec.md §4.6): it allocates and
// claims pages, handles faults, grows the stack, copies address
// spaces on fork, and tears them down on exit. Every other package in
// this module (mmu, frametable, swap, page, spt, vmctx) is a leaf this
// one composes — the same "small pieces wired by one coordinator"
// shape as the teacher's own vm.Vm_t, which glues Pmap_t, Physmem_t,
// and the fault path together behind Lock_pmap/Unlock_pmap.
package vm

import (
	"fmt"

	"defs"
	"frametable"
	"mem"
	"mmu"
	"page"
	"spt"
	"swap"
	"vmctx"
)

// UserStackTop and StackGrowLimit are the bit-exact constants spec.md
// §6 names: the top of the user address range, and the maximum the
// stack may grow below it.
const (
	UserStackTop   = uintptr(0x00007ffffffff000)
	StackGrowLimit = uintptr(1 << 20)
)

// / IsKernelVaddr classifies va the way spec.md §6's is_kernel_vaddr
// / collaborator does: anything at or above UserStackTop belongs to the
// / kernel, not a process.
func IsKernelVaddr(va uintptr) bool {
	return va >= UserStackTop
}

// / AddrSpace bundles one thread's SPT with its simulated page table.
// / spec.md treats them as separate components (§3), but every
// / coordinator entry point needs both together, so they travel as a
// / pair instead of two parameters threaded through every call.
type AddrSpace struct {
	SPT   *spt.Table
	Space *mmu.AddrSpace
	// UserRsp is the thread's saved user stack pointer, set on syscall
	// entry (spec.md §6) — TryHandleFault's caller supplies the
	// current rsp directly since this simulation has no interrupt
	// frame to read it from.
	UserRsp uintptr
}

// / NewAddrSpace allocates an empty address space. k0/k1 seed the SPT's
// / siphash key; callers should pick a fresh pair per process so
// / sibling address spaces never hash va the same way.
func NewAddrSpace(k0, k1 uint64) *AddrSpace {
	return &AddrSpace{SPT: spt.New(k0, k1), Space: mmu.New()}
}

// / Init is vm_init(): it wires the physical frame pool, the frame
// / table, and the swap allocator into one vmctx.Global and hands it
// / back — the one object every later entry point takes as an explicit
// / argument (spec.md §9).
func Init(userFrames int, dev swap.Device) *vmctx.Global {
	pool := mem.NewPool(userFrames)
	frames := frametable.New()
	swapper := swap.NewAllocator(dev)
	fmt.Printf("vm: %d user frames, %d swap slots\n", userFrames, swapper.Slots())
	return vmctx.New(pool, frames, swapper)
}

// / Kill_t is the panic value TryHandleFault raises on a BadAddress
// / condition (spec.md §7): the caller's fault dispatch loop is
// / expected to recover it and terminate the faulting thread with exit
// / code -1. The VM core itself never retries a terminated fault.
type Kill_t struct {
	Va uintptr
}

func (k Kill_t) String() string {
	return fmt.Sprintf("bad user access at %#x", k.Va)
}

// / AllocPageWithInitializer is alloc_page_with_initializer (spec.md
// / §4.6.1): it rejects Uninit as a target, rounds va down, and installs
// / a fresh Uninit descriptor that will materialize into kind on first
// / touch.
func AllocPageWithInitializer(as *AddrSpace, ctx *vmctx.Global, kind page.Kind, va uintptr, writable bool, init page.Initializer, aux interface{}) defs.Err_t {
	if kind == page.KindUninit {
		panic("vm: alloc_page_with_initializer: uninit is not a valid target type")
	}
	va = mem.Rounddown(va)
	if _, ok := as.SPT.Find(va); ok {
		return -defs.EEXIST
	}
	p := page.NewUninit(as.Space, ctx, va, writable, kind, init, aux)
	if !as.SPT.Insert(p) {
		return -defs.EEXIST
	}
	return 0
}

// / AllocPage is alloc_page(type, va, writable): the plain-anonymous
// / convenience path alloc_page_with_initializer generalizes. File-
// / backed pages always go through the mmap package instead, since they
// / need a reopened handle and a byte range alloc_page alone has no way
// / to supply.
func AllocPage(as *AddrSpace, ctx *vmctx.Global, va uintptr, writable bool) defs.Err_t {
	return AllocPageWithInitializer(as, ctx, page.KindAnon, va, writable, page.AnonInitializer, nil)
}

// / ClaimPage is claim_page(va) (spec.md §4.6.2): locate the descriptor,
// / acquire a frame, bind it, install the mapping, and replay the
// / variant's initialize/swap_in. vm_lock is released across that last
// / step since disk I/O (real or simulated) must not run under it
// / (spec.md §5's suspension-point rule); any failure unwinds the
// / binding and leaves the descriptor non-resident.
func ClaimPage(as *AddrSpace, ctx *vmctx.Global, va uintptr) defs.Err_t {
	va = mem.Rounddown(va)

	ctx.Lock()
	p, ok := as.SPT.Find(va)
	if !ok {
		ctx.Unlock()
		return -defs.EFAULT
	}
	// Two concurrent faults on the same va: the loser is a no-op once
	// the winner has already made the page resident (spec.md §8).
	if p.St == page.Resident {
		ctx.Unlock()
		return 0
	}
	frame, ok := ctx.Frames.Acquire(ctx.Pool)
	if !ok {
		ctx.Unlock()
		return -defs.ENOMEM
	}
	p.Frame = frame
	frame.Owner = p
	as.Space.Install(va, frame.Kva, p.Writable)
	wasUninit := p.St == page.Uninit
	ctx.Unlock()

	var err defs.Err_t
	if wasUninit {
		err = p.Initialize(frame.Kva)
	} else {
		err = p.SwapIn(frame.Kva)
	}

	ctx.Lock()
	defer ctx.Unlock()
	if err != 0 {
		as.Space.Clear(va)
		ctx.Frames.Unlink(frame)
		ctx.Pool.FreeUserPage(frame.Kva)
		p.Frame = nil
		frame.Owner = nil
		return err
	}
	p.St = page.Resident
	return 0
}

// / TryHandleFault is try_handle_fault (spec.md §4.6.3). rsp is the
// / value the real kernel would read off the interrupt frame
// / (from_user) or the thread's saved user-rsp otherwise — this
// / simulation has no interrupt frame, so the caller resolves that
// / distinction and passes the result directly.
func TryHandleFault(as *AddrSpace, ctx *vmctx.Global, faultVa, rsp uintptr, fromUser, write, notPresent bool) defs.Err_t {
	if fromUser && IsKernelVaddr(faultVa) {
		panic(Kill_t{faultVa})
	}
	if UserStackTop-StackGrowLimit <= rsp-8 && rsp-8 <= faultVa && faultVa <= UserStackTop {
		return growStack(as, ctx, faultVa)
	}
	va := mem.Rounddown(faultVa)
	p, ok := as.SPT.Find(va)
	if !ok {
		panic(Kill_t{faultVa})
	}
	if write && !p.Writable {
		panic(Kill_t{faultVa})
	}
	if notPresent {
		return ClaimPage(as, ctx, va)
	}
	// Present page, not a write-to-RO fault: a plain protection fault
	// (the original's vm_handle_wp). Rejected, not fatal to the thread.
	return -defs.EFAULT
}

// growStack is the stack-growth half of try_handle_fault (spec.md
// §4.6.5): allocate and claim every missing anonymous page between
// fault_va's page and the top of the stack, skipping pages that are
// already present (the common case: exactly one new page per fault).
// A failure partway through rolls back the pages this call created.
func growStack(as *AddrSpace, ctx *vmctx.Global, faultVa uintptr) defs.Err_t {
	lo := mem.Rounddown(faultVa)
	hi := mem.Rounddown(UserStackTop)

	var allocated []uintptr
	rollback := func() {
		for _, va := range allocated {
			as.SPT.Remove(va)
		}
	}

	for va := lo; va < hi; va += uintptr(mem.PGSIZE) {
		if _, ok := as.SPT.Find(va); ok {
			continue
		}
		if err := AllocPage(as, ctx, va, true); err != 0 {
			rollback()
			return err
		}
		allocated = append(allocated, va)
		p, _ := as.SPT.Find(va)
		p.Marker = page.MarkerStack
		if err := ClaimPage(as, ctx, va); err != 0 {
			rollback()
			return err
		}
	}
	return 0
}

// / Copy is spt_copy / copy(dst, src) (spec.md §4.6.4): fork's SPT
// / clone. It walks the source SPT in deterministic insertion order so
// / two calls over the same source always build the destination
// / identically, and deep-copies every Uninit aux so destroying one
// / child's descriptor can never double-free the sibling's lazy-load
// / parameters.
func Copy(dstAS *AddrSpace, dstCtx *vmctx.Global, srcAS *AddrSpace, srcCtx *vmctx.Global) defs.Err_t {
	var outerr defs.Err_t
	srcAS.SPT.Each(func(va uintptr, p *page.Page_t) {
		if outerr != 0 {
			return
		}
		switch v := p.Variant().(type) {
		case page.UninitData:
			outerr = AllocPageWithInitializer(dstAS, dstCtx, v.Target, va, p.Writable, v.Init, deepCopyAux(v.Aux))
		case page.AnonData:
			if err := AllocPage(dstAS, dstCtx, va, p.Writable); err != 0 {
				outerr = err
				return
			}
			outerr = copyResidentBytes(dstAS, dstCtx, srcAS, srcCtx, va)
		case page.FileData:
			aux := &page.FileAux{
				Handle:     v.Handle.Reopen(),
				Offset:     v.Offset,
				ReadBytes:  v.ReadBytes,
				ZeroBytes:  v.ZeroBytes,
				TotalPages: v.TotalPages,
			}
			if err := AllocPageWithInitializer(dstAS, dstCtx, page.KindFile, va, p.Writable, page.FileInitializer, aux); err != 0 {
				outerr = err
				return
			}
			outerr = copyResidentBytes(dstAS, dstCtx, srcAS, srcCtx, va)
		}
	})
	return outerr
}

// copyResidentBytes brings the source page resident (a no-op if it
// already is — the source thread is quiesced during fork, spec.md §5,
// so this is safe) and copies its frame byte-for-byte into the
// already-claimed destination page.
func copyResidentBytes(dstAS *AddrSpace, dstCtx *vmctx.Global, srcAS *AddrSpace, srcCtx *vmctx.Global, va uintptr) defs.Err_t {
	if err := ClaimPage(srcAS, srcCtx, va); err != 0 {
		return err
	}
	if err := ClaimPage(dstAS, dstCtx, va); err != 0 {
		return err
	}
	dstP, _ := dstAS.SPT.Find(va)
	srcP, _ := srcAS.SPT.Find(va)
	*dstP.Frame.Kva = *srcP.Frame.Kva
	return 0
}

// deepCopyAux clones an Uninit aux blob so two sibling descriptors
// never alias the same backing struct (spec.md §4.6.4's rationale).
func deepCopyAux(aux interface{}) interface{} {
	switch a := aux.(type) {
	case *page.FileAux:
		cp := *a
		cp.Handle = a.Handle.Reopen()
		return &cp
	default:
		return aux
	}
}
