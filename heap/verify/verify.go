package verify

import (
	"encoding/binary"
	"fmt"

	"github.com/joshuapare/heapkit/heap"
)

// ValidationError describes one violated heap invariant.
type ValidationError struct {
	Type    string
	Message string
	Offset  int
}

func (e *ValidationError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("%s at offset 0x%X: %s", e.Type, e.Offset, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// AllInvariants validates every structural heap invariant in one call,
// returning the first violation found or nil.
func AllInvariants(a *heap.Allocator) error {
	if err := BlockGranularity(a); err != nil {
		return err
	}
	if err := NoAdjacentFree(a); err != nil {
		return err
	}
	if err := BoundaryTags(a); err != nil {
		return err
	}
	if err := ClassPlacement(a); err != nil {
		return err
	}
	return nil
}

// BlockGranularity checks that every block's size is a multiple of the
// minimum block size and at least that large, and that the block map tiles
// the region exactly.
func BlockGranularity(a *heap.Allocator) error {
	end := a.HeapSize() - heap.WordSize
	next := uint32(heap.WordSize)
	for _, b := range a.Blocks() {
		if b.Header != next {
			return &ValidationError{
				Type:    "BlockGranularity",
				Message: fmt.Sprintf("gap in block map: expected header at 0x%X", next),
				Offset:  int(b.Header),
			}
		}
		if b.Size < heap.Alignment || b.Size%heap.Alignment != 0 {
			return &ValidationError{
				Type:    "BlockGranularity",
				Message: fmt.Sprintf("block size %d not a multiple of %d", b.Size, heap.Alignment),
				Offset:  int(b.Header),
			}
		}
		next = b.Header + b.Size
	}
	if next != end {
		return &ValidationError{
			Type:    "BlockGranularity",
			Message: fmt.Sprintf("block map ends at 0x%X, epilogue at 0x%X", next, end),
			Offset:  int(next),
		}
	}
	return nil
}

// NoAdjacentFree checks the immediate-coalescing invariant: an address-
// ascending scan never finds two consecutive free blocks.
func NoAdjacentFree(a *heap.Allocator) error {
	prevFree := false
	for _, b := range a.Blocks() {
		if !b.Alloc && prevFree {
			return &ValidationError{
				Type:    "NoAdjacentFree",
				Message: "two consecutive free blocks",
				Offset:  int(b.Header),
			}
		}
		prevFree = !b.Alloc
	}
	return nil
}

// BoundaryTags checks that every free block's footer mirrors its header and
// that every block's prev-alloc bit agrees with its predecessor's state.
func BoundaryTags(a *heap.Allocator) error {
	data := a.Bytes()
	prevAlloc := true // prologue sentinel
	for _, b := range a.Blocks() {
		if b.PrevAlloc != prevAlloc {
			return &ValidationError{
				Type:    "BoundaryTags",
				Message: "prev-alloc bit disagrees with predecessor",
				Offset:  int(b.Header),
			}
		}
		if !b.Alloc {
			hw := binary.LittleEndian.Uint32(data[b.Header:])
			fw := binary.LittleEndian.Uint32(data[b.Footer():])
			if hw != fw {
				return &ValidationError{
					Type:    "BoundaryTags",
					Message: fmt.Sprintf("footer 0x%08X does not mirror header 0x%08X", fw, hw),
					Offset:  int(b.Header),
				}
			}
		}
		prevAlloc = b.Alloc
	}
	return nil
}

// ClassPlacement checks the class placement law: every free block is
// registered in exactly the class its size maps to, and every listed block
// is free.
func ClassPlacement(a *heap.Allocator) error {
	free := make(map[uint32]uint32) // header -> size
	for _, b := range a.Blocks() {
		if !b.Alloc {
			free[b.Header] = b.Size
		}
	}

	listed := make(map[uint32]int)
	for class := 0; class < heap.NumClasses; class++ {
		for _, hdr := range a.FreeBlocks(class) {
			if prev, dup := listed[hdr]; dup {
				return &ValidationError{
					Type:    "ClassPlacement",
					Message: fmt.Sprintf("block linked in classes %d and %d", prev, class),
					Offset:  int(hdr),
				}
			}
			listed[hdr] = class
			size, ok := free[hdr]
			if !ok {
				return &ValidationError{
					Type:    "ClassPlacement",
					Message: fmt.Sprintf("class %d lists a block that is not free", class),
					Offset:  int(hdr),
				}
			}
			if want := heap.ClassOf(size); want != class {
				return &ValidationError{
					Type:    "ClassPlacement",
					Message: fmt.Sprintf("size %d belongs to class %d, found in %d", size, want, class),
					Offset:  int(hdr),
				}
			}
		}
	}

	for hdr := range free {
		if _, ok := listed[hdr]; !ok {
			return &ValidationError{
				Type:    "ClassPlacement",
				Message: "free block not reachable from any class list",
				Offset:  int(hdr),
			}
		}
	}
	return nil
}
