package heap

import "fmt"

// Realloc resizes an allocated block, preserving its payload prefix.
//
// A zero ref allocates; a zero size frees. Shrinking happens in place,
// splitting off the tail when it can stand alone as a block. Growing first
// tries in place: absorbing following free blocks, and — when the block abuts
// the heap end — extending the region directly. Only when in-place growth is
// impossible does it fall back to allocate, copy, and release.
func (a *Allocator) Realloc(ref Ref, size int) (Ref, []byte, error) {
	if ref == 0 {
		return a.Alloc(size)
	}
	a.stats.ReallocCalls++
	if size == 0 {
		return 0, nil, a.Free(ref)
	}
	if size < 0 {
		return 0, nil, ErrSizeRange
	}

	data := a.region.Bytes()
	hdr, err := a.allocatedHeader(data, ref)
	if err != nil {
		return 0, nil, err
	}
	asize64 := align16(uint64(size) + WordSize)
	if asize64 > maxBlockSize {
		return 0, nil, fmt.Errorf("%w: %d", ErrSizeRange, size)
	}
	asize := uint32(asize64)

	cur := blockSize(data, hdr)
	if cur < asize {
		cur = a.backwardCollect(data, hdr, asize)
	}
	if cur < asize && hdr+cur == a.region.Len()-WordSize {
		cur = a.growInPlace(data, hdr, cur, asize)
		data = a.region.Bytes()
	}

	if cur >= asize {
		a.trimTail(data, hdr, cur, asize)
		placed := blockSize(data, hdr)
		if a.cfg.Check {
			a.checkHeap("realloc")
		}
		return ref, data[ref : hdr+placed], nil
	}

	// Move: allocate first so a failure leaves the old block intact.
	newRef, payload, err := a.Alloc(size)
	if err != nil {
		return 0, nil, err
	}
	data = a.region.Bytes()
	copy(payload, data[ref:hdr+cur])
	if err := a.Free(ref); err != nil {
		return 0, nil, err
	}
	return newRef, payload, nil
}

// growInPlace extends the region and absorbs the appended space directly into
// the allocated block at hdr, which must end at the epilogue. Returns the
// block's new size, or cur unchanged when the provider refuses to grow.
func (a *Allocator) growInPlace(data []byte, hdr, cur, asize uint32) uint32 {
	base, err := a.region.Extend(asize - cur)
	if err != nil {
		return cur
	}
	data = a.region.Bytes()
	grown := a.region.Len() - base
	a.stats.GrowCalls++
	a.stats.GrowBytes += int64(grown)

	cur += grown
	putWord(data, hdr, pack(cur, readWord(data, hdr)&(allocBit|prevAllocBit)))
	putWord(data, a.region.Len()-WordSize, pack(0, allocBit|prevAllocBit))

	a.log.Debug("region extended in place",
		"grown", grown, "heap", a.region.Len())
	return cur
}

// trimTail shrinks the allocated block at hdr from cur to asize bytes. The
// freed tail is coalesced with a free successor and registered in its class;
// remainders below the minimum block size stay attached to the block.
func (a *Allocator) trimTail(data []byte, hdr, cur, asize uint32) {
	rem := cur - asize
	if rem < Alignment {
		return
	}
	a.stats.SplitCount++
	putWord(data, hdr, pack(asize, readWord(data, hdr)&(allocBit|prevAllocBit)))

	tail := hdr + asize
	putWord(data, tail, pack(rem, prevAllocBit))
	writeFooter(data, tail)

	merged := a.coalesce(data, tail)
	a.lists.insert(data, merged)
	setPrevAlloc(data, merged+blockSize(data, merged), false)
}
