package heap

import (
	"io"
	"log/slog"
)

// Ordering selects the free-list insertion discipline. Exactly one discipline
// is active per allocator instance.
type Ordering uint8

const (
	// OrderAddress inserts free blocks in ascending address order. Insertion
	// costs a walk of the class list, but the deterministic layout makes
	// debugging and heap dumps far easier to reason about.
	OrderAddress Ordering = iota

	// OrderLIFO pushes freed blocks at the head of their class list in O(1),
	// trading layout determinism for cheaper insertion.
	OrderLIFO
)

// Config carries the allocator's build-time tunables. The zero value is not
// usable; start from DefaultConfig.
type Config struct {
	// ChunkSize is the region extension granularity in bytes.
	ChunkSize uint32

	// Ordering is the free-list insertion discipline.
	Ordering Ordering

	// Check makes the allocator walk the whole heap and assert its
	// invariants after every mutating operation. Development builds only:
	// a violated invariant means a latent bug, and the allocator fails
	// loudly (panic with a state dump) rather than continue on a corrupted
	// heap.
	Check bool

	// Logger receives debug-level growth and placement events. Nil discards.
	Logger *slog.Logger
}

// DefaultConfig is the production configuration: 4KB extension chunks,
// address-ordered free lists, no per-operation checking.
var DefaultConfig = Config{
	ChunkSize: ChunkSize,
	Ordering:  OrderAddress,
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
