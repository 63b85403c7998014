package heap

import (
	"fmt"
	"os"
	"runtime/debug"
)

// BlockInfo describes one block's boundaries, exposed for the diagnostic
// collaborator. Footer is only meaningful while the block is free.
type BlockInfo struct {
	Header    uint32
	Size      uint32
	Alloc     bool
	PrevAlloc bool
}

// Footer returns the block's footer word offset.
func (b BlockInfo) Footer() uint32 { return footerOff(b.Header, b.Size) }

// Payload returns the block's payload offset.
func (b BlockInfo) Payload() uint32 { return payloadOf(b.Header) }

// Blocks walks the region address-ascending, from the first block after the
// prologue up to (excluding) the epilogue sentinel. A zero-size header before
// the epilogue terminates the walk early; the checker reports it.
func (a *Allocator) Blocks() []BlockInfo {
	data := a.region.Bytes()
	end := a.region.Len() - WordSize
	var blocks []BlockInfo
	for hdr := uint32(WordSize); hdr < end; {
		size := blockSize(data, hdr)
		if size == 0 {
			break
		}
		blocks = append(blocks, BlockInfo{
			Header:    hdr,
			Size:      size,
			Alloc:     blockAlloc(data, hdr),
			PrevAlloc: blockPrevAlloc(data, hdr),
		})
		hdr += size
	}
	return blocks
}

// checkHeap walks the whole heap and asserts its invariants. Corruption here
// is a latent engine bug; continuing would let a damaged free list do far
// worse downstream, so it dumps state and fails hard.
func (a *Allocator) checkHeap(op string) {
	if err := a.checkInvariants(); err != nil {
		a.dumpHeap(op, err)
		panic(fmt.Sprintf("heap: corrupted after %s: %v", op, err))
	}
}

func (a *Allocator) checkInvariants() error {
	data := a.region.Bytes()
	end := a.region.Len() - WordSize

	prevAlloc := true // the prologue sentinel is allocated
	prevFree := false
	for hdr := uint32(WordSize); hdr < end; {
		size := blockSize(data, hdr)
		if size < Alignment || size%Alignment != 0 {
			return fmt.Errorf("block %#x: bad size %d", hdr, size)
		}
		if hdr+size > end {
			return fmt.Errorf("block %#x: size %d runs past epilogue", hdr, size)
		}
		alloc := blockAlloc(data, hdr)
		if blockPrevAlloc(data, hdr) != prevAlloc {
			return fmt.Errorf("block %#x: prev-alloc bit disagrees with predecessor", hdr)
		}
		if !alloc {
			if prevFree {
				return fmt.Errorf("block %#x: adjacent free blocks", hdr)
			}
			if readWord(data, footerOff(hdr, size)) != readWord(data, hdr) {
				return fmt.Errorf("block %#x: footer does not mirror header", hdr)
			}
			if !a.inClassList(data, hdr, size) {
				return fmt.Errorf("block %#x: free but not in class %d list", hdr, ClassOf(size))
			}
		}
		prevFree = !alloc
		prevAlloc = alloc
		hdr += size
	}
	if blockPrevAlloc(data, end) != prevAlloc {
		return fmt.Errorf("epilogue: prev-alloc bit disagrees with last block")
	}

	for class := 0; class < NumClasses; class++ {
		for _, hdr := range a.lists.classBlocks(data, class) {
			if blockAlloc(data, hdr) {
				return fmt.Errorf("class %d: allocated block %#x in free list", class, hdr)
			}
			if ClassOf(blockSize(data, hdr)) != class {
				return fmt.Errorf("class %d: block %#x of size %d misplaced",
					class, hdr, blockSize(data, hdr))
			}
		}
	}
	return nil
}

func (a *Allocator) inClassList(data []byte, hdr, size uint32) bool {
	for _, h := range a.lists.classBlocks(data, ClassOf(size)) {
		if h == hdr {
			return true
		}
	}
	return false
}

// dumpHeap prints the block map, free-list summary, and a stack trace to
// stderr ahead of the panic, so the crash site is diagnosable post-mortem.
func (a *Allocator) dumpHeap(op string, cause error) {
	fmt.Fprintf(os.Stderr, "\n=== HEAP STATE DUMP (after %s) ===\n", op)
	fmt.Fprintf(os.Stderr, "cause: %v\n", cause)
	fmt.Fprintf(os.Stderr, "region: %d bytes\n", a.region.Len())
	for _, b := range a.Blocks() {
		state := "free "
		if b.Alloc {
			state = "alloc"
		}
		fmt.Fprintf(os.Stderr, "  %#08x  %s  size=%-10d prev_alloc=%v\n",
			b.Header, state, b.Size, b.PrevAlloc)
	}
	data := a.region.Bytes()
	for class := 0; class < NumClasses; class++ {
		if blocks := a.lists.classBlocks(data, class); len(blocks) > 0 {
			fmt.Fprintf(os.Stderr, "  class[%d] (>=%d): %d blocks\n",
				class, classBoundaries[class], len(blocks))
		}
	}
	fmt.Fprintf(os.Stderr, "%s\n", debug.Stack())
}
