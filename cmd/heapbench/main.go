// Command heapbench replays allocator workload traces and reports throughput
// and space utilization per trace.
//
// Usage:
//
//	heapbench [flags] trace.rep [trace.rep ...]
//
// Each trace runs against a fresh in-memory heap. With -check the engine
// validates every heap invariant after each operation, which is slow but
// turns latent corruption into an immediate failure at the guilty op.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/internal/trace"
)

func main() {
	var (
		chunk   = flag.Uint("chunk", heap.ChunkSize, "region extension granularity in bytes")
		order   = flag.String("order", "address", "free-list insertion order: address or lifo")
		check   = flag.Bool("check", false, "validate heap invariants after every operation")
		limit   = flag.Int("limit", 0, "heap size cap in bytes, 0 for unlimited")
		verbose = flag.Bool("v", false, "debug logging to stderr")
	)
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: heapbench [flags] trace.rep [trace.rep ...]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := heap.Config{
		ChunkSize: uint32(*chunk),
		Check:     *check,
		Logger:    log,
	}
	switch *order {
	case "address":
		cfg.Ordering = heap.OrderAddress
	case "lifo":
		cfg.Ordering = heap.OrderLIFO
	default:
		fmt.Fprintf(os.Stderr, "heapbench: unknown order %q\n", *order)
		os.Exit(2)
	}

	failed := 0
	for _, path := range flag.Args() {
		tr, err := trace.ParseFile(path)
		if err != nil {
			log.Error("trace parse failed", "path", path, "error", err)
			failed++
			continue
		}
		log.Debug("trace loaded", "path", path, "ops", len(tr.Ops), "blocks", tr.Blocks)

		res, err := replay(tr, heap.NewMemProvider(*limit), &cfg)
		if err != nil {
			log.Error("replay failed", "path", path, "error", err)
			failed++
			continue
		}

		fmt.Printf("%s\n", res.Trace)
		fmt.Printf("  ops         %d\n", res.Ops)
		fmt.Printf("  throughput  %.0f ops/s\n", res.OpsPerSec())
		fmt.Printf("  heap        %d bytes\n", res.HeapBytes)
		fmt.Printf("  utilization %.1f%%\n", 100*res.Utilization())
		fmt.Printf("  grows       %d (%d bytes)\n", res.Stats.GrowCalls, res.Stats.GrowBytes)
		fmt.Printf("  splits      %d, coalesces %d\n",
			res.Stats.SplitCount, res.Stats.CoalescePrev+res.Stats.CoalesceNext)
	}
	if failed > 0 {
		os.Exit(1)
	}
}
