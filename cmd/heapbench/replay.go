package main

import (
	"fmt"
	"time"

	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/internal/trace"
)

// Result summarizes one trace replay.
type Result struct {
	Trace       string
	Ops         int
	Elapsed     time.Duration
	HeapBytes   uint32
	PeakPayload int64
	Stats       heap.Stats
}

// Utilization is peak aggregate payload over final heap size: the fraction
// of the grown region that was ever simultaneously useful.
func (r Result) Utilization() float64 {
	if r.HeapBytes == 0 {
		return 0
	}
	return float64(r.PeakPayload) / float64(r.HeapBytes)
}

// OpsPerSec is replay throughput.
func (r Result) OpsPerSec() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Ops) / r.Elapsed.Seconds()
}

// replay runs every operation of a trace against a fresh allocator built
// over prov, keeping the trace's block ids mapped to live refs.
func replay(tr *trace.Trace, prov heap.Provider, cfg *heap.Config) (Result, error) {
	a, err := heap.New(prov, cfg)
	if err != nil {
		return Result{}, err
	}

	refs := make([]heap.Ref, tr.Blocks)
	sizes := make([]int64, tr.Blocks)
	var payload, peak int64

	start := time.Now()
	for i, op := range tr.Ops {
		switch op.Kind {
		case trace.KindAlloc:
			ref, _, err := a.Alloc(op.Size)
			if err != nil {
				return Result{}, fmt.Errorf("op %d (a %d %d): %w", i, op.ID, op.Size, err)
			}
			refs[op.ID] = ref
			sizes[op.ID] = int64(op.Size)
			payload += int64(op.Size)

		case trace.KindRealloc:
			ref, _, err := a.Realloc(refs[op.ID], op.Size)
			if err != nil {
				return Result{}, fmt.Errorf("op %d (r %d %d): %w", i, op.ID, op.Size, err)
			}
			refs[op.ID] = ref
			payload += int64(op.Size) - sizes[op.ID]
			sizes[op.ID] = int64(op.Size)

		case trace.KindFree:
			if refs[op.ID] == 0 {
				continue // freeing a block that was never allocated is a no-op
			}
			if err := a.Free(refs[op.ID]); err != nil {
				return Result{}, fmt.Errorf("op %d (f %d): %w", i, op.ID, err)
			}
			refs[op.ID] = 0
			payload -= sizes[op.ID]
			sizes[op.ID] = 0
		}
		if payload > peak {
			peak = payload
		}
	}
	elapsed := time.Since(start)

	return Result{
		Trace:       tr.Name,
		Ops:         len(tr.Ops),
		Elapsed:     elapsed,
		HeapBytes:   a.HeapSize(),
		PeakPayload: peak,
		Stats:       a.Stats(),
	}, nil
}
