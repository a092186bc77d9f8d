package vm_test

import (
	"crypto/rc4"
	"sort"
	"sync"
	"testing"

	"mem"
	"mmap"
	"swap"
	"vfile"
	"vm"
	"vmctx"
)

const (
	mergeChunkSize  = 128 * 1024
	mergeNumChunks  = 8
	mergeTotalBytes = mergeChunkSize * mergeNumChunks
)

// TestParallelMergeSort drives spec.md §8 scenario 6 through the real VM
// subsystem rather than sorting bare []byte slices: a 1 MiB file holding
// a deterministic RC4("foobar") stream is mmap'd into a parent address
// space, and each of eight goroutines forks its own address space off
// the parent (vm.Copy — a full deep copy, per this module's no-COW fork
// semantics) standing in for the original's eight subprocesses sharing
// the mmap'd input. Each child claims, sorts, and writes back its own
// 128 KiB chunk through a frame pool far smaller than the mapping,
// forcing real eviction and swap-in/out along the way. The parent then
// merges the eight sorted runs and checks the merged output's byte
// histogram against the input's.
func TestParallelMergeSort(t *testing.T) {
	content := make([]byte, mergeTotalBytes)
	cipher, err := rc4.NewCipher([]byte("foobar"))
	if err != nil {
		t.Fatalf("rc4.NewCipher = %v", err)
	}
	cipher.XORKeyStream(content, content)
	wantHist := histogram(content)

	store := vfile.NewStore()
	store.Create("input", content)
	h, _ := store.Open("input")

	parentCtx := vm.Init(64, swap.NewMemDevice(64*swap.SectorsPerSlot))
	parentAS := vm.NewAddrSpace(1, 2)
	base, aerr := mmap.Mmap(parentAS, parentCtx, 0x2000000, mergeTotalBytes, true, h, 0)
	if aerr != 0 {
		t.Fatalf("Mmap = %d, want 0", aerr)
	}

	// Fault the whole mapping resident before forking so each child's
	// Copy actually exercises the File-resident branch (claim src,
	// claim dst, copy bytes) rather than the lazy-uninit branch — the
	// parent pool (64 frames) is smaller than the mapping (256 pages),
	// so this already forces eviction.
	for p := 0; p < mergeTotalBytes; p += mem.PGSIZE {
		if err := vm.ClaimPage(parentAS, parentCtx, base+uintptr(p)); err != 0 {
			t.Fatalf("priming ClaimPage(%#x) = %d, want 0", base+uintptr(p), err)
		}
	}

	chunks := make([][]byte, mergeNumChunks)
	var wg sync.WaitGroup
	for i := 0; i < mergeNumChunks; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			chunks[i] = sortChunk(t, i, base, parentAS, parentCtx)
		}(i)
	}
	wg.Wait()
	if t.Failed() {
		return
	}

	merged := kWayMerge(chunks)
	if len(merged) != mergeTotalBytes {
		t.Fatalf("merged length = %d, want %d", len(merged), mergeTotalBytes)
	}
	if !sort.SliceIsSorted(merged, func(a, b int) bool { return merged[a] < merged[b] }) {
		t.Fatal("expected merge of sorted chunks to be fully sorted")
	}
	if gotHist := histogram(merged); gotHist != wantHist {
		t.Fatal("merged output's byte histogram does not match the input's")
	}
}

// sortChunk forks a child address space off the parent's (a full
// deep-copy fork of the whole mapping, not just this chunk), then
// claims, sorts, and writes back chunk i's 128 KiB through the child's
// own small frame pool — each claim either faults the page in fresh off
// the file or brings it back from swap/the file, depending on what
// eviction already did to it under pool pressure. Errors are reported
// via t.Errorf, which is safe to call from a non-test goroutine.
func sortChunk(t *testing.T, i int, base uintptr, parentAS *vm.AddrSpace, parentCtx *vmctx.Global) []byte {
	// 8 frames against a 32-page (128 KiB) chunk: every child forces its
	// own eviction cycle while claiming and re-claiming its chunk.
	childCtx := vm.Init(8, swap.NewMemDevice(64*swap.SectorsPerSlot))
	childAS := vm.NewAddrSpace(uint64(2*i+10), uint64(2*i+11))
	if err := vm.Copy(childAS, childCtx, parentAS, parentCtx); err != 0 {
		t.Errorf("chunk %d: fork Copy = %d, want 0", i, err)
		return nil
	}

	chunkStart := base + uintptr(i*mergeChunkSize)
	buf := make([]byte, mergeChunkSize)
	for p := 0; p < mergeChunkSize; p += mem.PGSIZE {
		pva := chunkStart + uintptr(p)
		if err := vm.ClaimPage(childAS, childCtx, pva); err != 0 {
			t.Errorf("chunk %d: ClaimPage(%#x) = %d, want 0", i, pva, err)
			return nil
		}
		kva, ok := childAS.Space.Translate(pva)
		if !ok {
			t.Errorf("chunk %d: page at %#x not mapped after claim", i, pva)
			return nil
		}
		copy(buf[p:p+mem.PGSIZE], kva[:])
	}

	sort.Slice(buf, func(a, b int) bool { return buf[a] < buf[b] })

	for p := 0; p < mergeChunkSize; p += mem.PGSIZE {
		pva := chunkStart + uintptr(p)
		if err := vm.ClaimPage(childAS, childCtx, pva); err != 0 {
			t.Errorf("chunk %d: re-claim(%#x) = %d, want 0", i, pva, err)
			return nil
		}
		kva, _ := childAS.Space.Translate(pva)
		copy(kva[:], buf[p:p+mem.PGSIZE])
		childAS.Space.Touch(pva, true)
	}
	return buf
}

func histogram(data []byte) [256]int {
	var h [256]int
	for _, b := range data {
		h[b]++
	}
	return h
}

// kWayMerge merges already-sorted byte slices into one sorted slice.
func kWayMerge(chunks [][]byte) []byte {
	total := 0
	idx := make([]int, len(chunks))
	for _, c := range chunks {
		total += len(c)
	}
	out := make([]byte, 0, total)
	for {
		best := -1
		for i, c := range chunks {
			if idx[i] >= len(c) {
				continue
			}
			if best == -1 || c[idx[i]] < chunks[best][idx[best]] {
				best = i
			}
		}
		if best == -1 {
			break
		}
		out = append(out, chunks[best][idx[best]])
		idx[best]++
	}
	return out
}
