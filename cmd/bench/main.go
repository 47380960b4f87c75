// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package main provides benchmarking tools for the epoch-based reclamation engine.
//
// This command-line tool measures the cost of the engine's hot paths and the
// behavior of deferred reclamation under contention. It's useful for
// performance testing, tuning the garbage threshold, and comparing different
// configurations.
//
// # Benchmark Categories
//
// The benchmark suite includes:
//   - Pin/unpin baseline (uncontended guard acquisition cost)
//   - Concurrent pinning (scalability of the participant protocol)
//   - Stack contention (a Treiber stack reclaiming nodes through the engine)
//   - Mixed workloads (readers walking the structure while mutators churn it)
//   - Reclamation lag (how far freed trails unlinked under load)
//
// # Usage
//
// Run all benchmarks with defaults:
//
//	go run ./cmd/bench
//
// Tune the workload:
//
//	go run ./cmd/bench --goroutines 16 --ops 500000 --threshold 128
//
// Skip the slower suites and dump engine metrics afterwards:
//
//	go run ./cmd/bench --skip mixed,stack --metrics
//
// # Interpreting Results
//
// Key metrics to consider:
//   - **Throughput**: Operations per second (higher is better)
//   - **Advance rate**: Epoch advances per second; a stalled rate under load
//     points at a long-lived guard or an undersized threshold
//   - **Reclamation lag**: unlinked minus freed at the end of a run; a large
//     residue means garbage is outliving the workload
//
// # Dangers and Warnings
//
//   - **Resource Consumption**: Benchmarks can consume significant CPU and memory.
//   - **System Impact**: High-intensity benchmarks may impact other processes.
//   - **Variance**: Results depend on core count, GC settings, and scheduling;
//     run multiple iterations before drawing conclusions.
//
// # See Also
//
// For usage examples, see the examples directory.
// For detailed API documentation, see the root ebr package.
package main

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/kianostad/ebr"
)

var (
	flagGoroutines int
	flagOps        int
	flagThreshold  int
	flagSkip       string
	flagMetrics    bool

	rootCmd = &cobra.Command{
		Use:   "bench",
		Short: "benchmarks for the epoch-based reclamation engine",
		Long: `Measures guard acquisition cost, epoch advance throughput, and
reclamation behavior under contention.`,
		RunE: runBenchmarks,
	}
)

func init() {
	rootCmd.Flags().IntVar(&flagGoroutines, "goroutines", 8, "number of concurrent goroutines")
	rootCmd.Flags().IntVar(&flagOps, "ops", 200000, "operations per goroutine")
	rootCmd.Flags().IntVar(&flagThreshold, "threshold", ebr.DefaultGarbageThreshold, "garbage threshold per participant")
	rootCmd.Flags().StringVar(&flagSkip, "skip", "", "benchmarks to skip (comma separated - e.g. stack,mixed)")
	rootCmd.Flags().BoolVar(&flagMetrics, "metrics", false, "dump Prometheus metrics after the run")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func shouldSkip(name string) bool {
	for _, s := range strings.Split(flagSkip, ",") {
		if strings.TrimSpace(s) == name {
			return true
		}
	}
	return false
}

func runBenchmarks(_ *cobra.Command, _ []string) error {
	fmt.Println("Epoch-Based Reclamation Benchmarks")
	fmt.Println("==================================")
	fmt.Printf("goroutines=%d ops=%d threshold=%d\n", flagGoroutines, flagOps, flagThreshold)

	if !shouldSkip("pin") {
		benchmarkPinBaseline()
	}
	if !shouldSkip("pin-concurrent") {
		benchmarkConcurrentPinning()
	}
	if !shouldSkip("stack") {
		benchmarkStackContention()
	}
	if !shouldSkip("mixed") {
		benchmarkMixedWorkload()
	}
	return nil
}

func benchmarkPinBaseline() {
	fmt.Println("\n1. Pin/unpin baseline (single goroutine)")
	c := ebr.NewCollector(ebr.WithGarbageThreshold(flagThreshold))
	p := c.Register()
	defer p.Deregister()

	total := flagGoroutines * flagOps
	start := time.Now()
	for i := 0; i < total; i++ {
		g := p.Pin()
		g.Unpin()
	}
	report("pin/unpin", total, time.Since(start))
}

func benchmarkConcurrentPinning() {
	fmt.Println("\n2. Concurrent pinning")
	c := ebr.NewCollector(ebr.WithGarbageThreshold(flagThreshold))

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < flagGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := c.Register()
			defer p.Deregister()
			for j := 0; j < flagOps; j++ {
				g := p.Pin()
				g.Unpin()
			}
		}()
	}
	wg.Wait()
	dur := time.Since(start)
	report("pin/unpin", flagGoroutines*flagOps, dur)

	st := c.Stats()
	fmt.Printf("   advances: %d (%.0f/sec)\n", st.Advances, float64(st.Advances)/dur.Seconds())
	dumpMetrics(c)
}

// benchNode is a Treiber stack node reclaimed through the engine.
type benchNode struct {
	val  int
	next ebr.Atomic[benchNode]
}

type benchStack struct {
	top      ebr.Atomic[benchNode]
	unlinked atomic.Uint64
	freed    atomic.Uint64
}

func (s *benchStack) push(p *ebr.Participant, v int) {
	g := p.Pin()
	defer g.Unpin()

	n := ebr.NewOwned(benchNode{val: v})
	for {
		head := s.top.Load(ebr.Acquire, g)
		n.Deref().next.StoreShared(head, ebr.Relaxed)
		if s.top.Cas(head, n, ebr.Release) {
			return
		}
	}
}

func (s *benchStack) pop(p *ebr.Participant) (int, bool) {
	g := p.Pin()
	defer g.Unpin()

	for {
		head := s.top.Load(ebr.Acquire, g)
		if head.IsNil() {
			return 0, false
		}
		next := head.Deref().next.Load(ebr.Relaxed, g)
		if s.top.CasShared(head, next, ebr.AcqRel) {
			v := head.Deref().val
			s.unlinked.Add(1)
			ebr.Unlinked(g, head, func(*benchNode) { s.freed.Add(1) })
			return v, true
		}
	}
}

func benchmarkStackContention() {
	fmt.Println("\n3. Stack contention (push/pop pairs)")
	c := ebr.NewCollector(ebr.WithGarbageThreshold(flagThreshold))
	var s benchStack

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < flagGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := c.Register()
			defer p.Deregister()
			for j := 0; j < flagOps; j++ {
				s.push(p, j)
				s.pop(p)
			}
		}()
	}
	wg.Wait()
	dur := time.Since(start)
	report("push+pop", flagGoroutines*flagOps, dur)
	reportLag(c, &s.unlinked, &s.freed)
	dumpMetrics(c)
}

func benchmarkMixedWorkload() {
	fmt.Println("\n4. Mixed workload (readers walking, mutators churning)")
	c := ebr.NewCollector(ebr.WithGarbageThreshold(flagThreshold))
	var s benchStack

	readers := flagGoroutines / 2
	if readers == 0 {
		readers = 1
	}
	mutators := flagGoroutines - readers
	if mutators == 0 {
		mutators = 1
	}

	var stop atomic.Bool
	var reads atomic.Uint64
	var rwg, mwg sync.WaitGroup

	start := time.Now()
	for i := 0; i < readers; i++ {
		rwg.Add(1)
		go func() {
			defer rwg.Done()
			p := c.Register()
			defer p.Deregister()
			for !stop.Load() {
				g := p.Pin()
				n := s.top.Load(ebr.Acquire, g)
				for i := 0; !n.IsNil() && i < 32; i++ {
					n = n.Deref().next.Load(ebr.Relaxed, g)
				}
				g.Unpin()
				reads.Add(1)
			}
		}()
	}
	for i := 0; i < mutators; i++ {
		mwg.Add(1)
		go func() {
			defer mwg.Done()
			p := c.Register()
			defer p.Deregister()
			for j := 0; j < flagOps; j++ {
				if j%2 == 0 {
					s.push(p, j)
				} else {
					s.pop(p)
				}
			}
		}()
	}
	mwg.Wait()
	stop.Store(true)
	rwg.Wait()
	dur := time.Since(start)

	report("mutations", mutators*flagOps, dur)
	fmt.Printf("   reads: %d (%.0f walks/sec)\n", reads.Load(), float64(reads.Load())/dur.Seconds())
	reportLag(c, &s.unlinked, &s.freed)
	dumpMetrics(c)
}

func report(name string, ops int, dur time.Duration) {
	fmt.Printf("   %s: %d ops in %v (%.0f ops/sec)\n", name, ops, dur, float64(ops)/dur.Seconds())
}

// reportLag drives the collector until quiescence and prints how much garbage
// the workload left behind.
func reportLag(c *ebr.Collector, unlinked, freed *atomic.Uint64) {
	residue := unlinked.Load() - freed.Load()
	fmt.Printf("   reclamation lag: unlinked=%d freed=%d residue=%d\n",
		unlinked.Load(), freed.Load(), residue)

	for i := 0; i < 4; i++ {
		c.ForceCollect()
	}
	fmt.Printf("   after quiescence: freed=%d residue=%d\n",
		freed.Load(), unlinked.Load()-freed.Load())
}

func dumpMetrics(c *ebr.Collector) {
	if !flagMetrics {
		return
	}
	fmt.Println("   --- metrics ---")
	c.Metrics().WritePrometheus(os.Stdout)
}
