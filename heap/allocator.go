package heap

import (
	"fmt"
	"log/slog"

	"github.com/joshuapare/heapkit/internal/buf"
)

// Ref is a block handle: the offset of the payload's first byte within the
// region. Zero is never a valid reference; it doubles as "no block".
type Ref = uint32

// Allocator is the engine: it owns one Region, the 28 segregated free lists,
// and nothing else. Instances share no state, and no operation is safe for
// concurrent use; callers serialize externally if they must share one.
type Allocator struct {
	region *Region
	lists  freeLists
	cfg    Config
	log    *slog.Logger
	stats  Stats
}

// New builds an allocator over the given provider: it writes the region
// sentinels, resets the free lists, and performs one initial extension of a
// full chunk. It fails only if that initial extension fails.
func New(prov Provider, cfg *Config) (*Allocator, error) {
	if cfg == nil {
		cfg = &DefaultConfig
	}
	c := *cfg
	if c.ChunkSize == 0 {
		c.ChunkSize = ChunkSize
	}
	logger := c.Logger
	if logger == nil {
		logger = discardLogger()
	}

	a := &Allocator{
		region: newRegion(prov, c.ChunkSize),
		cfg:    c,
		log:    logger,
	}
	a.lists.order = c.Ordering
	a.lists.reset()

	// Bootstrap: one word of start padding (prologue) and the epilogue word,
	// both zero-size and allocated so boundary scans never run off the
	// region. The epilogue's prev-alloc bit reflects the prologue.
	if _, err := a.region.extendRaw(2 * WordSize); err != nil {
		return nil, err
	}
	data := a.region.Bytes()
	putWord(data, 0, pack(0, allocBit))
	putWord(data, WordSize, pack(0, allocBit|prevAllocBit))

	if _, err := a.extendHeap(c.ChunkSize); err != nil {
		return nil, err
	}
	return a, nil
}

// Alloc returns a handle to a block whose usable size is at least size bytes,
// plus the payload slice itself. size 0 yields a zero Ref and no error. The
// only runtime failure is ErrNoSpace (wrapping the provider's refusal to
// grow); oversized requests fail with ErrSizeRange.
func (a *Allocator) Alloc(size int) (Ref, []byte, error) {
	a.stats.AllocCalls++
	if size == 0 {
		return 0, nil, nil
	}
	if size < 0 {
		return 0, nil, ErrSizeRange
	}

	asize64 := align16(uint64(size) + WordSize)
	if asize64 > maxBlockSize {
		return 0, nil, fmt.Errorf("%w: %d", ErrSizeRange, size)
	}
	asize := uint32(asize64)

	data := a.region.Bytes()
	hdr, ok := a.lists.findFit(data, ClassOf(asize), asize)
	if !ok {
		grown, err := a.extendHeap(asize)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: %w", ErrNoSpace, err)
		}
		hdr = grown
		data = a.region.Bytes()
	}

	a.lists.remove(data, hdr)
	placed := a.placeAndSplit(data, hdr, asize)
	a.stats.BytesAllocated += int64(placed)

	if a.cfg.Check {
		a.checkHeap("alloc")
	}
	ref := payloadOf(hdr)
	return ref, data[ref : hdr+placed], nil
}

// Free releases an allocated block: marks it free, merges it with any free
// neighbor, and registers the merged block in its size class. An invalid
// reference is a caller bug; detected ones fail with ErrBadRef or
// ErrNotAllocated.
func (a *Allocator) Free(ref Ref) error {
	a.stats.FreeCalls++
	data := a.region.Bytes()
	hdr, err := a.allocatedHeader(data, ref)
	if err != nil {
		return err
	}
	size := blockSize(data, hdr)
	a.stats.BytesFreed += int64(size)

	// Mark free: clear the alloc bit, keep prev-alloc, mirror the footer.
	setAlloc(data, hdr, false)
	writeFooter(data, hdr)

	merged := a.coalesce(data, hdr)
	a.lists.insert(data, merged)
	setPrevAlloc(data, merged+blockSize(data, merged), false)

	if a.cfg.Check {
		a.checkHeap("free")
	}
	return nil
}

// allocatedHeader validates a caller-held reference and returns its header
// offset. The checks are cheap and catch the common misuse shapes; deeper
// corruption is the verify collaborator's job.
func (a *Allocator) allocatedHeader(data []byte, ref Ref) (uint32, error) {
	// The first block's header sits right after the one-word prologue, so
	// the lowest valid payload offset is 2*WordSize. Every header lands at
	// WordSize past a block-granularity boundary, so valid refs are
	// congruent to 2*WordSize modulo Alignment.
	if ref < 2*WordSize || ref%Alignment != 2*WordSize || !buf.Has(data, int(ref), WordSize) {
		return 0, fmt.Errorf("%w: ref %#x", ErrBadRef, ref)
	}
	hdr := headerOf(ref)
	size := blockSize(data, hdr)
	if size < Alignment || !buf.Has(data, int(hdr), int(size)) {
		return 0, fmt.Errorf("%w: ref %#x", ErrBadRef, ref)
	}
	if !blockAlloc(data, hdr) {
		return 0, fmt.Errorf("%w: ref %#x", ErrNotAllocated, ref)
	}
	return hdr, nil
}

// placeAndSplit converts the free block at hdr (already unlinked) into an
// allocated block of asize bytes. A remainder of at least the minimum block
// size becomes a new free block in its own class; smaller remainders are
// consumed whole to avoid unusable fragments. Returns the placed size.
func (a *Allocator) placeAndSplit(data []byte, hdr, asize uint32) uint32 {
	size := blockSize(data, hdr)
	flags := readWord(data, hdr) & prevAllocBit

	if rem := size - asize; rem >= Alignment {
		a.stats.SplitCount++
		putWord(data, hdr, pack(asize, flags|allocBit))
		tail := hdr + asize
		putWord(data, tail, pack(rem, prevAllocBit))
		writeFooter(data, tail)
		a.lists.insert(data, tail)
		// The block after the remainder followed a free block before the
		// split and still does; its prev-alloc bit is already clear.
		return asize
	}

	putWord(data, hdr, pack(size, flags|allocBit))
	setPrevAlloc(data, hdr+size, true)
	return size
}

// coalesce merges the free block at hdr with whichever of its neighbors are
// free, driven by the boundary tags: prev-alloc bit for the predecessor, the
// next header's alloc bit for the successor. Participating neighbors are
// unlinked from their class lists here; registering the merged result is the
// caller's job. Returns the merged block's header offset.
func (a *Allocator) coalesce(data []byte, hdr uint32) uint32 {
	size := blockSize(data, hdr)
	next := hdr + size

	if !blockAlloc(data, next) {
		nsize := blockSize(data, next)
		a.lists.remove(data, next)
		size += nsize
		a.stats.CoalesceNext++
	}
	if !blockPrevAlloc(data, hdr) {
		psize := readWord(data, hdr-WordSize) & sizeMask
		prev := hdr - psize
		a.lists.remove(data, prev)
		size += psize
		hdr = prev
		a.stats.CoalescePrev++
	}

	putWord(data, hdr, pack(size, readWord(data, hdr)&prevAllocBit))
	writeFooter(data, hdr)
	return hdr
}

// extendHeap grows the region enough to carve a free block of at least need
// bytes at the heap end, reusing any free run already abutting the old
// epilogue so the region never grows more than necessary. The merged block is
// registered in its size class and returned.
func (a *Allocator) extendHeap(need uint32) (uint32, error) {
	data := a.region.Bytes()
	epi := a.region.Len() - WordSize

	// A free block ending at the old epilogue contributes its whole size;
	// only the shortfall is requested from the provider.
	shortfall := uint64(need)
	if !blockPrevAlloc(data, epi) {
		tail := readWord(data, epi-WordSize) & sizeMask
		if uint64(tail) >= shortfall {
			// The trailing run already suffices; nothing to grow.
			return epi - tail, nil
		}
		shortfall -= uint64(tail)
	}

	base, err := a.region.Extend(uint32(shortfall))
	if err != nil {
		return 0, err
	}
	data = a.region.Bytes()
	grown := a.region.Len() - base
	a.stats.GrowCalls++
	a.stats.GrowBytes += int64(grown)

	// The old epilogue word becomes the new block's header; its prev-alloc
	// bit carries over. A fresh epilogue closes the region.
	hdr := base - WordSize
	putWord(data, hdr, pack(grown, readWord(data, hdr)&prevAllocBit))
	writeFooter(data, hdr)
	putWord(data, a.region.Len()-WordSize, pack(0, allocBit))

	hdr = a.forwardCollect(data, hdr, need)
	a.lists.insert(data, hdr)

	a.log.Debug("region extended",
		"need", need, "grown", grown, "heap", a.region.Len())
	return hdr, nil
}

// forwardCollect grows the free block at hdr backward through preceding free
// blocks, located via their footers, until the accumulated run reaches target
// or no free predecessor remains. Absorbed blocks are unlinked. Returns the
// run's header offset.
func (a *Allocator) forwardCollect(data []byte, hdr, target uint32) uint32 {
	size := blockSize(data, hdr)
	for !blockPrevAlloc(data, hdr) {
		psize := readWord(data, hdr-WordSize) & sizeMask
		prev := hdr - psize
		a.lists.remove(data, prev)
		size += psize
		hdr = prev
		a.stats.CoalescePrev++
		putWord(data, hdr, pack(size, readWord(data, hdr)&prevAllocBit))
		writeFooter(data, hdr)
		if size >= target {
			break
		}
	}
	return hdr
}

// backwardCollect grows the allocated block at hdr forward through following
// free blocks, located via their headers, until the block reaches target or
// the successor is allocated. Absorbed blocks are unlinked and the
// successor's prev-alloc bit is restored. Returns the block's new size.
func (a *Allocator) backwardCollect(data []byte, hdr, target uint32) uint32 {
	size := blockSize(data, hdr)
	flags := readWord(data, hdr) & (allocBit | prevAllocBit)
	for size < target {
		next := hdr + size
		if blockAlloc(data, next) {
			break
		}
		a.lists.remove(data, next)
		size += blockSize(data, next)
		a.stats.CoalesceNext++
		putWord(data, hdr, pack(size, flags))
	}
	setPrevAlloc(data, hdr+size, true)
	return size
}

// Bytes exposes the raw region for the diagnostic collaborator. The slice is
// invalidated by any operation that grows the region.
func (a *Allocator) Bytes() []byte { return a.region.Bytes() }

// HeapSize returns the current region size in bytes.
func (a *Allocator) HeapSize() uint32 { return a.region.Len() }

// FreeBlocks returns the header offsets registered in one size class, in
// list order. Diagnostic use only.
func (a *Allocator) FreeBlocks(class int) []uint32 {
	if class < 0 || class >= NumClasses {
		return nil
	}
	return a.lists.classBlocks(a.region.Bytes(), class)
}

// UsableSize returns the payload capacity of an allocated block.
func (a *Allocator) UsableSize(ref Ref) (int, error) {
	data := a.region.Bytes()
	hdr, err := a.allocatedHeader(data, ref)
	if err != nil {
		return 0, err
	}
	return int(blockSize(data, hdr)) - WordSize, nil
}
