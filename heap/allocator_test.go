package heap

import (
	"bytes"
	"errors"
	"math/bits"
	"testing"
)

func newTestAllocator(t *testing.T, cfg *Config) *Allocator {
	t.Helper()
	if cfg == nil {
		cfg = &Config{Check: true}
	}
	a, err := New(NewMemProvider(0), cfg)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

// Test_Allocator_Bootstrap tests the freshly initialized heap: sentinels in
// place and one chunk-sized free block.
func Test_Allocator_Bootstrap(t *testing.T) {
	a := newTestAllocator(t, nil)

	if a.HeapSize() != 2*WordSize+ChunkSize {
		t.Fatalf("Expected heap size %d, got %d", 2*WordSize+ChunkSize, a.HeapSize())
	}
	blocks := a.Blocks()
	if len(blocks) != 1 {
		t.Fatalf("Expected 1 block, got %d", len(blocks))
	}
	b := blocks[0]
	if b.Alloc || b.Size != ChunkSize || !b.PrevAlloc {
		t.Fatalf("Unexpected initial block: %+v", b)
	}
	if free := a.FreeBlocks(ClassOf(ChunkSize)); len(free) != 1 || free[0] != b.Header {
		t.Fatalf("Initial block not registered in class %d", ClassOf(ChunkSize))
	}
}

// Test_Allocator_AllocSplit tests that carving a small block from a large
// free block leaves the remainder free in its own class.
func Test_Allocator_AllocSplit(t *testing.T) {
	a := newTestAllocator(t, nil)

	ref, payload, err := a.Alloc(100)
	if err != nil {
		t.Fatal(err)
	}
	if ref == 0 {
		t.Fatal("Expected non-zero ref")
	}
	// 100 + header rounds up to 112; payload is the rest of the block.
	if len(payload) != 112-WordSize {
		t.Fatalf("Expected payload len %d, got %d", 112-WordSize, len(payload))
	}

	blocks := a.Blocks()
	if len(blocks) != 2 {
		t.Fatalf("Expected 2 blocks after split, got %d", len(blocks))
	}
	if !blocks[0].Alloc || blocks[0].Size != 112 {
		t.Fatalf("Unexpected allocated block: %+v", blocks[0])
	}
	if blocks[1].Alloc || blocks[1].Size != ChunkSize-112 {
		t.Fatalf("Unexpected remainder block: %+v", blocks[1])
	}
	if !blocks[1].PrevAlloc {
		t.Fatal("Remainder lost its prev-alloc bit")
	}
}

// Test_Allocator_NoSplitBelowMinimum tests that a request whose aligned size
// matches the free block exactly consumes it whole instead of splitting.
func Test_Allocator_NoSplitBelowMinimum(t *testing.T) {
	a := newTestAllocator(t, nil)

	ref, _, err := a.Alloc(ChunkSize - WordSize)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Free(ref); err != nil {
		t.Fatal(err)
	}

	// 8 bytes short of the whole chunk still rounds up to the whole chunk.
	ref, payload, err := a.Alloc(ChunkSize - WordSize - 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(payload) != ChunkSize-WordSize {
		t.Fatalf("Expected whole-block payload %d, got %d", ChunkSize-WordSize, len(payload))
	}
	if len(a.Blocks()) != 1 {
		t.Fatalf("Expected 1 block, got %d", len(a.Blocks()))
	}
	if err := a.Free(ref); err != nil {
		t.Fatal(err)
	}
}

// Test_Allocator_ZeroAndNegative tests the degenerate request sizes.
func Test_Allocator_ZeroAndNegative(t *testing.T) {
	a := newTestAllocator(t, nil)

	ref, payload, err := a.Alloc(0)
	if err != nil || ref != 0 || payload != nil {
		t.Fatalf("Alloc(0) = (%v, %v, %v), want (0, nil, nil)", ref, payload, err)
	}

	if _, _, err := a.Alloc(-1); !errors.Is(err, ErrSizeRange) {
		t.Fatalf("Expected ErrSizeRange, got %v", err)
	}
	if bits.UintSize == 64 {
		huge := int(uint64(1) << 33)
		if _, _, err := a.Alloc(huge); !errors.Is(err, ErrSizeRange) {
			t.Fatalf("Expected ErrSizeRange for %d, got %v", huge, err)
		}
	}
}

// Test_Allocator_ReuseWithoutGrowth tests that freed space satisfies an
// equal follow-up request without touching the provider.
func Test_Allocator_ReuseWithoutGrowth(t *testing.T) {
	a := newTestAllocator(t, nil)
	before := a.HeapSize()

	refs := make([]Ref, 0, 8)
	for i := 0; i < 8; i++ {
		ref, _, err := a.Alloc(200)
		if err != nil {
			t.Fatal(err)
		}
		refs = append(refs, ref)
	}
	for _, ref := range refs {
		if err := a.Free(ref); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 8; i++ {
		if _, _, err := a.Alloc(200); err != nil {
			t.Fatal(err)
		}
	}

	if a.HeapSize() != before {
		t.Fatalf("Heap grew from %d to %d on a reuse workload", before, a.HeapSize())
	}
}

// Test_Allocator_CoalesceBothSides tests merging with both neighbors: free
// the middle of three adjacent blocks last and expect one merged block.
func Test_Allocator_CoalesceBothSides(t *testing.T) {
	a := newTestAllocator(t, nil)

	r1, _, _ := a.Alloc(100)
	r2, _, _ := a.Alloc(100)
	r3, _, _ := a.Alloc(100)

	if err := a.Free(r1); err != nil {
		t.Fatal(err)
	}
	if err := a.Free(r3); err != nil {
		t.Fatal(err)
	}
	if err := a.Free(r2); err != nil {
		t.Fatal(err)
	}

	blocks := a.Blocks()
	if len(blocks) != 1 {
		t.Fatalf("Expected 1 merged block, got %d", len(blocks))
	}
	if blocks[0].Alloc || blocks[0].Size != ChunkSize {
		t.Fatalf("Unexpected merged block: %+v", blocks[0])
	}
}

// Test_Allocator_FreeOrderIndependence tests that every free order of three
// adjacent blocks converges to the same fully merged heap.
func Test_Allocator_FreeOrderIndependence(t *testing.T) {
	orders := [][]int{
		{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0},
	}
	for _, order := range orders {
		a := newTestAllocator(t, nil)
		var refs [3]Ref
		for i := range refs {
			ref, _, err := a.Alloc(300)
			if err != nil {
				t.Fatal(err)
			}
			refs[i] = ref
		}
		for _, i := range order {
			if err := a.Free(refs[i]); err != nil {
				t.Fatalf("order %v: %v", order, err)
			}
		}
		if blocks := a.Blocks(); len(blocks) != 1 || blocks[0].Alloc {
			t.Fatalf("order %v: heap did not merge back to one free block", order)
		}
	}
}

// Test_Allocator_DisjointAligned tests that successive allocations hand out
// aligned, non-overlapping blocks.
func Test_Allocator_DisjointAligned(t *testing.T) {
	a := newTestAllocator(t, nil)

	r1, p1, err := a.Alloc(100)
	if err != nil {
		t.Fatal(err)
	}
	r2, p2, err := a.Alloc(50)
	if err != nil {
		t.Fatal(err)
	}

	if len(p1) < 100 || len(p2) < 50 {
		t.Fatalf("Payloads below request: %d, %d", len(p1), len(p2))
	}
	if headerOf(r1)%Alignment != WordSize || headerOf(r2)%Alignment != WordSize {
		t.Fatalf("Headers not on block granularity: %#x, %#x", r1, r2)
	}
	if r1 < r2+uint32(len(p2)) && r2 < r1+uint32(len(p1)) {
		t.Fatalf("Blocks overlap: %#x+%d vs %#x+%d", r1, len(p1), r2, len(p2))
	}
}

// Test_Allocator_MergedBlockRegistration tests that releasing two adjacent
// blocks yields one free block spanning both, registered in the class of the
// merged size.
func Test_Allocator_MergedBlockRegistration(t *testing.T) {
	a := newTestAllocator(t, nil)

	_, _, _ = a.Alloc(100)        // A, stays allocated
	rB, _, _ := a.Alloc(100)      // B
	rC, _, _ := a.Alloc(200)      // C
	if _, _, err := a.Alloc(16); err != nil { // pin past C
		t.Fatal(err)
	}

	if err := a.Free(rB); err != nil {
		t.Fatal(err)
	}
	if err := a.Free(rC); err != nil {
		t.Fatal(err)
	}

	merged := uint32(112 + 208) // aligned sizes of B and C
	for _, b := range a.Blocks() {
		if b.Header == headerOf(rB) {
			if b.Alloc || b.Size != merged {
				t.Fatalf("Expected free block of %d at B, got %+v", merged, b)
			}
		}
	}

	free := a.FreeBlocks(ClassOf(merged))
	for _, h := range free {
		if h == headerOf(rB) {
			return
		}
	}
	t.Fatalf("Merged block not registered in class %d", ClassOf(merged))
}

// Test_Allocator_Growth tests region extension when no free block fits, and
// that the prev-alloc chain survives across the old epilogue.
func Test_Allocator_Growth(t *testing.T) {
	a := newTestAllocator(t, nil)

	r1, _, err := a.Alloc(ChunkSize - WordSize)
	if err != nil {
		t.Fatal(err)
	}
	before := a.HeapSize()

	r2, _, err := a.Alloc(ChunkSize - WordSize)
	if err != nil {
		t.Fatal(err)
	}
	if a.HeapSize() <= before {
		t.Fatal("Expected region growth")
	}
	if r2 <= r1 {
		t.Fatalf("Expected new block past old heap end, got %#x <= %#x", r2, r1)
	}

	blocks := a.Blocks()
	if len(blocks) != 2 {
		t.Fatalf("Expected 2 blocks, got %d", len(blocks))
	}
	if !blocks[1].PrevAlloc {
		t.Fatal("Extension lost the prev-alloc bit across the old epilogue")
	}
}

// Test_Allocator_GrowthReusesTrailingRun tests that a free run abutting the
// heap end contributes to an extension, so the region grows only by the
// shortfall.
func Test_Allocator_GrowthReusesTrailingRun(t *testing.T) {
	a := newTestAllocator(t, nil)

	// Pin the front of the heap so the trailing free run cannot satisfy a
	// large request alone.
	if _, _, err := a.Alloc(2048); err != nil {
		t.Fatal(err)
	}
	// Trailing free run is now ChunkSize - 2064 bytes.
	if _, _, err := a.Alloc(2 * ChunkSize); err != nil {
		t.Fatal(err)
	}

	// The shortfall is well under 2*ChunkSize + block overhead, so growth
	// must be smaller than a from-scratch extension would be.
	grown := a.HeapSize() - (2*WordSize + ChunkSize)
	if grown >= 2*ChunkSize+ChunkSize {
		t.Fatalf("Region grew %d bytes, trailing run not reused", grown)
	}
	if grown%ChunkSize != 0 {
		t.Fatalf("Growth %d not chunk-aligned", grown)
	}
}

// Test_Allocator_NoSpace tests that a provider refusal surfaces as
// ErrNoSpace with the provider's cause in the chain, leaving the heap usable.
func Test_Allocator_NoSpace(t *testing.T) {
	a, err := New(NewMemProvider(2*WordSize+ChunkSize), &Config{Check: true})
	if err != nil {
		t.Fatal(err)
	}

	_, _, err = a.Alloc(2 * ChunkSize)
	if !errors.Is(err, ErrNoSpace) {
		t.Fatalf("Expected ErrNoSpace, got %v", err)
	}
	if !errors.Is(err, ErrMemLimit) {
		t.Fatalf("Expected wrapped ErrMemLimit, got %v", err)
	}

	// The failure is recoverable: a fitting request still succeeds.
	if _, _, err := a.Alloc(100); err != nil {
		t.Fatal(err)
	}
}

// Test_Allocator_FirstBlockRoundTrip tests the very first handle a fresh
// heap hands out: its payload starts at the lowest valid offset, right after
// the prologue word, and every ref-taking operation must accept it.
func Test_Allocator_FirstBlockRoundTrip(t *testing.T) {
	a := newTestAllocator(t, nil)

	ref, _, err := a.Alloc(100)
	if err != nil {
		t.Fatal(err)
	}
	if ref != 2*WordSize {
		t.Fatalf("Expected first payload at offset %d, got %#x", 2*WordSize, ref)
	}

	if _, err := a.UsableSize(ref); err != nil {
		t.Fatalf("UsableSize of first block: %v", err)
	}
	newRef, _, err := a.Realloc(ref, 200)
	if err != nil {
		t.Fatalf("Realloc of first block: %v", err)
	}
	if err := a.Free(newRef); err != nil {
		t.Fatalf("Free of first block: %v", err)
	}
}

// Test_Allocator_MisalignedRef tests that a ref pointing into a payload is
// rejected even when the word behind it decodes to a plausible header.
func Test_Allocator_MisalignedRef(t *testing.T) {
	a := newTestAllocator(t, nil)

	ref, _, err := a.Alloc(100)
	if err != nil {
		t.Fatal(err)
	}
	// Plant a believable header word inside the payload, then present the
	// offset just past it as a handle.
	putWord(a.Bytes(), ref, pack(16, allocBit|prevAllocBit))

	if err := a.Free(ref + WordSize); !errors.Is(err, ErrBadRef) {
		t.Fatalf("Mid-payload free: expected ErrBadRef, got %v", err)
	}
	if _, err := a.UsableSize(ref + WordSize); !errors.Is(err, ErrBadRef) {
		t.Fatalf("Mid-payload UsableSize: expected ErrBadRef, got %v", err)
	}

	if err := a.Free(ref); err != nil {
		t.Fatal(err)
	}
}

// Test_Allocator_BadFree tests the detectable invalid-release shapes.
func Test_Allocator_BadFree(t *testing.T) {
	a := newTestAllocator(t, nil)
	ref, _, err := a.Alloc(64)
	if err != nil {
		t.Fatal(err)
	}

	if err := a.Free(0); !errors.Is(err, ErrBadRef) {
		t.Fatalf("Free(0): expected ErrBadRef, got %v", err)
	}
	if err := a.Free(a.HeapSize() + 100); !errors.Is(err, ErrBadRef) {
		t.Fatalf("Out-of-range free: expected ErrBadRef, got %v", err)
	}

	if err := a.Free(ref); err != nil {
		t.Fatal(err)
	}
	err = a.Free(ref)
	if !errors.Is(err, ErrNotAllocated) && !errors.Is(err, ErrBadRef) {
		t.Fatalf("Double free: expected ErrNotAllocated or ErrBadRef, got %v", err)
	}
}

// Test_Allocator_PayloadIntegrity tests that payload bytes survive unrelated
// alloc and free traffic.
func Test_Allocator_PayloadIntegrity(t *testing.T) {
	a := newTestAllocator(t, nil)

	ref, payload, err := a.Alloc(256)
	if err != nil {
		t.Fatal(err)
	}
	for i := range payload {
		payload[i] = byte(i)
	}

	// Churn around the pinned block.
	var refs []Ref
	for i := 0; i < 20; i++ {
		r, _, err := a.Alloc(64 * (i + 1))
		if err != nil {
			t.Fatal(err)
		}
		refs = append(refs, r)
	}
	for _, r := range refs {
		if err := a.Free(r); err != nil {
			t.Fatal(err)
		}
	}

	data := a.Bytes()
	n, err := a.UsableSize(ref)
	if err != nil {
		t.Fatal(err)
	}
	want := make([]byte, n)
	for i := range want {
		want[i] = byte(i)
	}
	if !bytes.Equal(data[ref:int(ref)+n], want) {
		t.Fatal("Payload clobbered by unrelated traffic")
	}
}

// Test_Allocator_LIFOOrdering tests the LIFO insertion discipline: the most
// recently freed block of a class sits at the list head.
func Test_Allocator_LIFOOrdering(t *testing.T) {
	a := newTestAllocator(t, &Config{Ordering: OrderLIFO, Check: true})

	r1, _, _ := a.Alloc(100)
	r2, _, _ := a.Alloc(200) // spacer keeps r1 and r3 from coalescing
	r3, _, _ := a.Alloc(100)
	_, _, _ = a.Alloc(16) // pin the tail so r3 does not merge forward
	_ = r2

	if err := a.Free(r1); err != nil {
		t.Fatal(err)
	}
	if err := a.Free(r3); err != nil {
		t.Fatal(err)
	}

	free := a.FreeBlocks(ClassOf(112))
	if len(free) != 2 {
		t.Fatalf("Expected 2 free blocks in class, got %d", len(free))
	}
	if free[0] != headerOf(r3) {
		t.Fatalf("Expected most recent free at head, got %#x", free[0])
	}
}

// Test_Allocator_AddressOrdering tests the default address-ordered insertion
// discipline.
func Test_Allocator_AddressOrdering(t *testing.T) {
	a := newTestAllocator(t, nil)

	r1, _, _ := a.Alloc(100)
	_, _, _ = a.Alloc(200)
	r3, _, _ := a.Alloc(100)
	_, _, _ = a.Alloc(16)

	if err := a.Free(r3); err != nil {
		t.Fatal(err)
	}
	if err := a.Free(r1); err != nil {
		t.Fatal(err)
	}

	free := a.FreeBlocks(ClassOf(112))
	if len(free) != 2 {
		t.Fatalf("Expected 2 free blocks in class, got %d", len(free))
	}
	if free[0] != headerOf(r1) || free[1] != headerOf(r3) {
		t.Fatalf("Expected address order [%#x %#x], got %v",
			headerOf(r1), headerOf(r3), free)
	}
}

// Test_Allocator_Stats tests the operation counters.
func Test_Allocator_Stats(t *testing.T) {
	a := newTestAllocator(t, nil)

	r1, _, _ := a.Alloc(100)
	r2, _, _ := a.Alloc(100)
	_ = a.Free(r1)
	_ = a.Free(r2)

	s := a.Stats()
	if s.AllocCalls != 2 || s.FreeCalls != 2 {
		t.Fatalf("Expected 2 allocs and 2 frees, got %+v", s)
	}
	if s.SplitCount == 0 {
		t.Fatal("Expected at least one split")
	}
	if s.CoalescePrev == 0 && s.CoalesceNext == 0 {
		t.Fatal("Expected at least one coalesce")
	}
	if s.BytesAllocated != s.BytesFreed {
		t.Fatalf("Byte counters disagree: %+v", s)
	}
	if s.GrowCalls < 1 {
		t.Fatal("Expected the bootstrap extension in GrowCalls")
	}
}

// Test_Allocator_UsableSize tests the payload capacity accessor.
func Test_Allocator_UsableSize(t *testing.T) {
	a := newTestAllocator(t, nil)

	ref, payload, err := a.Alloc(100)
	if err != nil {
		t.Fatal(err)
	}
	n, err := a.UsableSize(ref)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(payload) {
		t.Fatalf("UsableSize %d disagrees with payload len %d", n, len(payload))
	}
	if n < 100 {
		t.Fatalf("UsableSize %d below request", n)
	}

	if _, err := a.UsableSize(0); !errors.Is(err, ErrBadRef) {
		t.Fatalf("Expected ErrBadRef, got %v", err)
	}
}
