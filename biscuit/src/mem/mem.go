// Package mem models the physical side of the VM subsystem: page-size
// constants, PTE bit layout, and the physical user-frame pool that
// frametable.Table allocates from and evicts back into.
package mem

import (
	"fmt"
	"sync"
)

// / PGSHIFT is the base-2 exponent for the page size.
const PGSHIFT uint = 12

// / PGSIZE is the size of a single page in bytes (spec.md §6: PAGE_SIZE).
const PGSIZE int = 1 << PGSHIFT

// / PGOFFSET masks the in-page offset of an address.
const PGOFFSET uintptr = uintptr(PGSIZE - 1)

// PTE permission/status bits, named after the teacher's x86-64 layout.
// Only the bits spec.md's MMU adaptor (§4.1) actually inspects survive
// here; segment/global/cache-control bits the real hardware needs are
// the MMU's own business, not the VM core's.
const (
	PTE_P Pa_t = 1 << 0 /// present
	PTE_W Pa_t = 1 << 1 /// writable
	PTE_U Pa_t = 1 << 2 /// user-accessible
	PTE_A Pa_t = 1 << 5 /// accessed
	PTE_D Pa_t = 1 << 6 /// dirty
)

// / Pa_t represents a simulated physical address: the index of a frame
// / within the pool. It exists as a distinct type, as in the teacher, so
// / that a va and a pa are never accidentally interchanged.
type Pa_t uintptr

// / Page_t is one physical frame's backing bytes — the "kva" spec.md
// / talks about is simply a *Page_t in this simulation.
type Page_t [PGSIZE]byte

// / Rounddown rounds a byte count or address down to a page boundary.
func Rounddown(v uintptr) uintptr {
	return v &^ PGOFFSET
}

// / Roundup rounds a byte count or address up to a page boundary.
func Roundup(v uintptr) uintptr {
	if v&PGOFFSET == 0 {
		return v
	}
	return Rounddown(v) + uintptr(PGSIZE)
}

type framelist_t struct {
	pg   *Page_t
	next *framelist_t
}

// / Pool is the physical frame pool external collaborator named in
// / spec.md §6 (alloc_user_page/free_user_page). It hands out and takes
// / back zeroed Page_t frames from a fixed-size arena — there is no
// / virtual memory below this layer to page the arena itself out to.
type Pool struct {
	sync.Mutex
	arena []Page_t
	free  *framelist_t
	nfree int
	ntot  int
}

// / NewPool preallocates an arena of n frames, exactly as
// / mem.Phys_init reserves a fixed number of pages up front in the
// / teacher.
func NewPool(n int) *Pool {
	p := &Pool{}
	p.arena = make([]Page_t, n)
	p.ntot = n
	for i := n - 1; i >= 0; i-- {
		p.free = &framelist_t{pg: &p.arena[i], next: p.free}
	}
	p.nfree = n
	fmt.Printf("mem: reserved %d user frames (%dKB)\n", n, n*PGSIZE/1024)
	return p
}

// / AllocUserPage returns a zeroed frame from the pool, or ok=false if
// / the pool is exhausted. Eviction (frametable.Table.Acquire) is the
// / caller's fallback, not this function's.
func (p *Pool) AllocUserPage() (*Page_t, bool) {
	p.Lock()
	defer p.Unlock()
	if p.free == nil {
		return nil, false
	}
	fl := p.free
	p.free = fl.next
	p.nfree--
	*fl.pg = Page_t{}
	return fl.pg, true
}

// / FreeUserPage returns a frame to the pool. It panics if the pool is
// / already saturated — a caller passing a dangling frame is a bug the
// / spec requires the VM core to never produce.
func (p *Pool) FreeUserPage(pg *Page_t) {
	p.Lock()
	defer p.Unlock()
	p.free = &framelist_t{pg: pg, next: p.free}
	p.nfree++
	if p.nfree > p.ntot {
		panic("mem: double free of a user frame")
	}
}

// / Free reports how many frames remain unallocated.
func (p *Pool) Free() int {
	p.Lock()
	defer p.Unlock()
	return p.nfree
}

// / Total reports the pool's fixed capacity.
func (p *Pool) Total() int {
	return p.ntot
}
