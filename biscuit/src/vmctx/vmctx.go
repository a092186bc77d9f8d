// Package vmctx holds the one piece of process-wide mutable state the
// VM subsystem needs: the frame table, the swap allocator, the physical
// frame pool, and the single lock serializing all three (spec.md §5,
// §9). It is created once by vm.Init and threaded as an explicit
// argument into every core entry point — spec.md §9 asks for this to be
// "a singleton context passed into every core entry point, not ambient
// module-level state", the same shape as
// Oichkatzelesfrettschen-biscuit's Vm_t.Lock_pmap/Unlock_pmap/
// Lockassert_pmap convention, just promoted from one address space's
// pmap lock to the kernel-wide vm_lock spec.md describes.
package vmctx

import (
	"sync"

	"frametable"
	"mem"
	"swap"
)

// / Global is the kernel-wide VM context: one per booted kernel,
// / constructed by vm.Init and never rebuilt.
type Global struct {
	mu     sync.Mutex
	locked bool

	Pool   *mem.Pool
	Frames *frametable.Table
	Swap   *swap.Allocator
}

// / New wires up a Global from its three components. vm.Init is the
// / only expected caller.
func New(pool *mem.Pool, frames *frametable.Table, sw *swap.Allocator) *Global {
	return &Global{Pool: pool, Frames: frames, Swap: sw}
}

// / Lock acquires vm_lock.
func (g *Global) Lock() {
	g.mu.Lock()
	g.locked = true
}

// / Unlock releases vm_lock.
func (g *Global) Unlock() {
	g.locked = false
	g.mu.Unlock()
}

// / Lockassert panics if vm_lock is not held — callers that mutate the
// / frame table, the clock hand, the swap bitmap, or call into the pool
// / without holding the lock are buggy by spec.md §5's own rule.
func (g *Global) Lockassert() {
	if !g.locked {
		panic("vm_lock must be held")
	}
}
