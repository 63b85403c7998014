package heap

import "errors"

var (
	// ErrNoSpace indicates that no free block large enough was found and the
	// region could not grow. This is the only failure that is part of normal
	// control flow; callers must check for it on every allocation.
	ErrNoSpace = errors.New("heap: no free block large enough")

	// ErrSizeRange indicates a requested size beyond the largest size class.
	// Such requests are rejected outright rather than wrapped or truncated.
	ErrSizeRange = errors.New("heap: size outside representable range")

	// ErrGrowFail indicates that the backing provider refused to extend the
	// region. Surfaced wrapped in allocation results, never as an abort.
	ErrGrowFail = errors.New("heap: region extension failed")

	// ErrBadRef indicates a reference that does not name a block in the
	// region: out of bounds, misaligned, or pointing into a payload.
	ErrBadRef = errors.New("heap: bad block reference")

	// ErrNotAllocated indicates a release or reallocation of a block that is
	// not currently allocated. Always a caller bug, never a runtime
	// condition to recover from.
	ErrNotAllocated = errors.New("heap: block is not allocated")

	// ErrMemLimit indicates the in-memory provider hit its configured size
	// limit. Used to simulate memory pressure in tests and benchmarks.
	ErrMemLimit = errors.New("heap: provider memory limit reached")
)
