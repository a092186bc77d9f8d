// Package hashtable provides a lock-free-read hash table keyed by
// page-aligned virtual address. It backs the supplemental page table
// (package spt): one bucket per hash slot, singly-linked chains kept
// sorted by key hash (Get still walks the whole chain), and an RCU-style
// read path that never takes a lock.
package hashtable

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/dchest/siphash"
)

type elem_t struct {
	key     int
	value   interface{}
	keyHash uint64
	next    *elem_t
}

type bucket_t struct {
	sync.RWMutex
	first *elem_t
}

func (b *bucket_t) len() int {
	b.RLock()
	defer b.RUnlock()

	l := 0
	for e := b.first; e != nil; e = e.next {
		l++
	}
	return l
}

func (b *bucket_t) elems() []Pair_t {
	b.RLock()
	defer b.RUnlock()

	p := make([]Pair_t, 0)
	for e := b.first; e != nil; e = e.next {
		p = append(p, Pair_t{Key: e.key, Value: e.value})
	}
	return p
}

func (b *bucket_t) iter(f func(int, interface{}) bool) bool {
	for e := b.first; e != nil; e = loadptr(&e.next) {
		if f(e.key, e.value) {
			return true
		}
	}
	return false
}

// / Hashtable_t maps a page-aligned virtual address to an arbitrary
// / payload (the SPT stores *page.Page_t here). It is protected
// / internally by per-bucket locks; Get is lock-free.
type Hashtable_t struct {
	table    []*bucket_t
	capacity int
	maxchain int
	k0, k1   uint64 // siphash key, fixed for this table's lifetime
}

// / MkHash allocates a new Hashtable_t with the given bucket count. k0/k1
// / seed the keyed hash so that two address spaces with adversarially
// / chosen va patterns don't collide identically; callers that don't care
// / about that (tests) may pass 0, 0.
func MkHash(size int, k0, k1 uint64) *Hashtable_t {
	ht := &Hashtable_t{}
	ht.capacity = size
	ht.table = make([]*bucket_t, size)
	ht.maxchain = 1
	ht.k0, ht.k1 = k0, k1
	for i := range ht.table {
		ht.table[i] = &bucket_t{}
	}
	return ht
}

// / String returns a formatted representation of the table contents.
func (ht *Hashtable_t) String() string {
	s := ""
	for i, b := range ht.table {
		if b.first != nil {
			s += fmt.Sprintf("b %d:\n", i)
			for e := b.first; e != nil; e = loadptr(&e.next) {
				s += fmt.Sprintf("(%v, %v), ", e.keyHash, e.key)
			}
			s += "\n"
		}
	}
	return s
}

// / Size returns the total number of elements stored in the table.
func (ht *Hashtable_t) Size() int {
	n := 0
	for _, b := range ht.table {
		n += b.len()
	}
	return n
}

// / Pair_t represents a key/value tuple returned by Elems.
type Pair_t struct {
	Key   int
	Value interface{}
}

// / Elems returns all key/value pairs currently stored, in no particular
// / order. Callers that need a deterministic walk (spt.Table.Each, used
// / by fork's vm.Copy) must keep
// / their own insertion-ordered index instead of relying on this.
func (ht *Hashtable_t) Elems() []Pair_t {
	p := make([]Pair_t, 0)
	for _, b := range ht.table {
		if n := b.elems(); n != nil {
			p = append(p, n...)
		}
	}
	return p
}

// / Get looks up key and returns its value.
func (ht *Hashtable_t) Get(key int) (interface{}, bool) {
	kh := ht.khash(key)
	b := ht.table[ht.slot(kh)]
	n := 0
	for e := loadptr(&b.first); e != nil; e = loadptr(&e.next) {
		if e.keyHash == kh && e.key == key {
			return e.value, true
		}
		n++
		if n > ht.maxchain {
			ht.maxchain = n
		}
	}
	return nil, false
}

// / Set inserts a key/value pair. It returns false without modifying the
// / table if the key already existed (the SPT relies on this to reject
// / duplicate va insertions, spec.md invariant 6).
func (ht *Hashtable_t) Set(key int, value interface{}) bool {
	kh := ht.khash(key)
	b := ht.table[ht.slot(kh)]
	b.Lock()
	defer b.Unlock()

	add := func(last *elem_t) {
		if last == nil {
			n := &elem_t{key: key, value: value, keyHash: kh, next: b.first}
			storeptr(&b.first, n)
		} else {
			n := &elem_t{key: key, value: value, keyHash: kh, next: last.next}
			storeptr(&last.next, n)
		}
	}

	var last *elem_t
	for e := b.first; e != nil; e = e.next {
		if e.keyHash == kh && e.key == key {
			return false
		}
		if kh < e.keyHash {
			add(last)
			return true
		}
		last = e
	}
	add(last)
	return true
}

// / Del removes a key from the table. It panics if the key is absent —
// / callers (spt.Remove) always check Get first.
func (ht *Hashtable_t) Del(key int) {
	kh := ht.khash(key)
	b := ht.table[ht.slot(kh)]
	b.Lock()
	defer b.Unlock()

	rem := func(last *elem_t, n *elem_t) {
		if last == nil {
			storeptr(&b.first, n.next)
		} else {
			storeptr(&last.next, n.next)
		}
	}

	var last *elem_t
	for e := b.first; e != nil; e = e.next {
		if e.keyHash == kh && e.key == key {
			rem(last, e)
			return
		}
		last = e
	}
	panic("del of non-existing key")
}

// / Clear empties every bucket without freeing the bucket array, so the
// / table can be reused (spt.Kill does this rather than discarding the
// / SPT entirely, matching spec.md §4.5).
func (ht *Hashtable_t) Clear() {
	for _, b := range ht.table {
		b.Lock()
		b.first = nil
		b.Unlock()
	}
}

// / Iter applies f to each key/value pair until f returns true.
func (ht *Hashtable_t) Iter(f func(int, interface{}) bool) bool {
	for _, b := range ht.table {
		if b.iter(f) {
			return true
		}
	}
	return false
}

func (ht *Hashtable_t) slot(keyHash uint64) int {
	return int(keyHash % uint64(len(ht.table)))
}

func (ht *Hashtable_t) khash(key int) uint64 {
	var buf [8]byte
	u := uint64(key)
	for i := 0; i < 8; i++ {
		buf[i] = byte(u >> (8 * i))
	}
	return siphash.Hash(ht.k0, ht.k1, buf[:])
}

// Without an explicit memory model, it is hard to know if this code is
// correct. LoadPointer/StorePointer don't issue a memory fence, but for
// traversing pointers in Get() and updating them in Set()/Del(), this might
// be ok on x86. The Go compiler also hopefully doesn't reorder loads
// wrt. LoadPointer.
func loadptr(e **elem_t) *elem_t {
	ptr := (*unsafe.Pointer)(unsafe.Pointer(e))
	p := atomic.LoadPointer(ptr)
	return (*elem_t)(unsafe.Pointer(p))
}

func storeptr(p **elem_t, n *elem_t) {
	ptr := (*unsafe.Pointer)(unsafe.Pointer(p))
	atomic.StorePointer(ptr, unsafe.Pointer(n))
}
