package heap

// Stats holds allocator counters for instrumentation and tests.
type Stats struct {
	AllocCalls   int
	FreeCalls    int
	ReallocCalls int

	GrowCalls int   // region extensions
	GrowBytes int64 // total bytes appended

	SplitCount   int // placements that split off a free remainder
	CoalescePrev int // merges with a free predecessor
	CoalesceNext int // merges with a free successor

	BytesAllocated int64 // total block bytes placed, headers included
	BytesFreed     int64 // total block bytes released
}

// Stats returns a snapshot of the allocator's counters.
func (a *Allocator) Stats() Stats {
	return a.stats
}
