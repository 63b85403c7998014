// Package heap implements a dynamic memory allocator over a single,
// monotonically growable memory region.
//
// # Overview
//
// The allocator carves blocks out of a contiguous arena obtained from a
// Provider (an sbrk-like extend primitive that can fail under memory
// pressure). Free space is indexed by 28 segregated free lists, one per
// power-of-two size class from 16 bytes to 2GB. Placement is first-fit
// within a class with conditional splitting; adjacent free blocks are merged
// immediately via boundary tags.
//
// # Block layout
//
// Every block starts with a one-word header packing its size and two flag
// bits: its own allocated state and its predecessor's. Allocated blocks
// carry no footer — the state lives in the successor's prev-alloc bit — so
// the whole word of overhead per allocation is the header. Free blocks
// mirror the header into a footer and keep their class-list links in the
// first two payload words.
//
// Blocks are addressed by offset into the arena rather than by pointer, so
// an allocator instance is an ordinary value: build as many independent
// instances as needed, none of them sharing state.
//
// # Usage
//
//	a, err := heap.New(heap.NewMemProvider(0), nil)
//	if err != nil {
//	    return err
//	}
//
//	ref, payload, err := a.Alloc(100)
//	if err != nil {
//	    return err
//	}
//	copy(payload, record)
//
//	// Later: shrink, grow, or release.
//	ref, payload, err = a.Realloc(ref, 300)
//	err = a.Free(ref)
//
// # Failure model
//
// ErrNoSpace (the provider refused to grow the region) is the only failure
// that belongs to normal control flow. Bad references and out-of-range sizes
// are caller bugs and fail with ErrBadRef, ErrNotAllocated, or ErrSizeRange.
// With Config.Check enabled the allocator re-validates every heap invariant
// after each operation and fails hard, with a state dump and stack trace, on
// the first violation.
//
// # Thread safety
//
// Allocator instances are not thread-safe and never block: every call runs
// to completion or fails outright. Callers that share an instance across
// goroutines must serialize access externally.
//
// # Related packages
//
//   - github.com/joshuapare/heapkit/heap/verify: invariant checker and
//     allocation ledger for development builds
//   - github.com/joshuapare/heapkit/internal/trace: allocation trace parsing
//     for the heapbench replay harness
package heap
