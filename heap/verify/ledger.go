package verify

import (
	"fmt"

	"github.com/joshuapare/heapkit/heap"
)

// Ledger shadows an allocator's live set so tests and replay harnesses can
// catch invalid or double releases, overlapping payloads, and payload
// clobbering before the engine's own checks would trip.
type Ledger struct {
	live map[heap.Ref]entry
}

type entry struct {
	size int
	fill byte
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{live: make(map[heap.Ref]entry)}
}

// OnAlloc records a successful allocation and stamps the payload with a fill
// byte derived from the ref, so later clobbering is detectable.
func (l *Ledger) OnAlloc(ref heap.Ref, payload []byte) error {
	if ref == 0 {
		return nil
	}
	if _, ok := l.live[ref]; ok {
		return fmt.Errorf("ledger: ref 0x%X handed out twice while live", ref)
	}
	for prev, e := range l.live {
		if overlaps(uint32(prev), e.size, uint32(ref), len(payload)) {
			return fmt.Errorf("ledger: payload at 0x%X overlaps live block 0x%X", ref, prev)
		}
	}
	fill := byte(ref>>4) | 1
	for i := range payload {
		payload[i] = fill
	}
	l.live[ref] = entry{size: len(payload), fill: fill}
	return nil
}

// OnFree checks that ref is live and its payload is still intact, then
// forgets it. A second OnFree for the same ref fails.
func (l *Ledger) OnFree(a *heap.Allocator, ref heap.Ref) error {
	e, ok := l.live[ref]
	if !ok {
		return fmt.Errorf("ledger: release of unknown ref 0x%X", ref)
	}
	data := a.Bytes()
	for i := 0; i < e.size; i++ {
		if data[int(ref)+i] != e.fill {
			return fmt.Errorf("ledger: payload at 0x%X clobbered at byte %d", ref, i)
		}
	}
	delete(l.live, ref)
	return nil
}

// OnRealloc moves a live entry to its new ref, checking that the prefix
// common to old and new sizes survived the move.
func (l *Ledger) OnRealloc(a *heap.Allocator, old, ref heap.Ref, payload []byte) error {
	e, ok := l.live[old]
	if !ok {
		return fmt.Errorf("ledger: realloc of unknown ref 0x%X", old)
	}
	keep := e.size
	if len(payload) < keep {
		keep = len(payload)
	}
	data := a.Bytes()
	for i := 0; i < keep; i++ {
		if data[int(ref)+i] != e.fill {
			return fmt.Errorf("ledger: realloc 0x%X->0x%X lost byte %d", old, ref, i)
		}
	}
	delete(l.live, old)
	fill := byte(ref>>4) | 1
	for i := range payload {
		payload[i] = fill
	}
	l.live[ref] = entry{size: len(payload), fill: fill}
	return nil
}

// Live returns the number of blocks the ledger believes are outstanding.
func (l *Ledger) Live() int {
	return len(l.live)
}

func overlaps(a uint32, an int, b uint32, bn int) bool {
	return a < b+uint32(bn) && b < a+uint32(an)
}
