// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package ebr provides safe, high-performance deferred memory reclamation
// for lock-free concurrent data structures.
//
// This is the main public API for the EBR library. Lock-free algorithms
// unlink nodes with compare-and-swap but cannot know when it becomes safe to
// free an unlinked node, because other goroutines may still hold snapshots
// obtained before the unlink. EBR defers each free until the epoch protocol
// proves no goroutine can still observe the address, without tracing live
// data and without pauses.
//
// # Quick Start
//
//	import "github.com/kianostad/ebr"
//
//	p := ebr.Register()
//	defer p.Deregister()
//
//	var head ebr.Atomic[node]
//
//	g := p.Pin()
//	s := head.Load(ebr.Acquire, g)
//	if !s.IsNil() {
//	    _ = s.Deref()
//	}
//	g.Unpin()
//
// # Key Features
//
//   - Three-value global epoch advanced by a single compare-and-swap
//   - Scoped guards bounding the validity of every shared pointer
//   - Owned/Shared/Atomic pointer triad encoding ownership transfer
//   - Opportunistic reclamation on pin, optional background collection
//   - Global fallback garbage lists for goroutines that stop participating
//   - Metrics with Prometheus exposition
//
// # Usage Examples
//
// Unlinking a node from a Treiber stack:
//
//	g := p.Pin()
//	for {
//	    head := s.top.Load(ebr.Acquire, g)
//	    if head.IsNil() {
//	        break
//	    }
//	    next := head.Deref().next.Load(ebr.Relaxed, g)
//	    if s.top.CasShared(head, next, ebr.AcqRel) {
//	        ebr.Unlinked(g, head, releaseNode)
//	        break
//	    }
//	}
//	g.Unpin()
//
// Using a dedicated collector instead of the process-wide one:
//
//	c := ebr.NewCollector(ebr.WithGarbageThreshold(128))
//	p := c.Register()
//	defer p.Deregister()
//
// # API Design Philosophy
//
// The engine keeps ownership explicit. An Owned pointer is private to its
// creator until published through an Atomic slot; a Shared pointer is a
// loan whose term is the guard it was read under. Reclamation is the
// caller's declaration (Unlinked) plus the engine's proof (epochs), never a
// runtime trace of live data.
//
// # Best Practices
//
//   - Deregister participants when their goroutine stops using the engine
//   - Keep pinned sections short; a pinned straggler stalls reclamation
//   - File an unlinked address exactly once, right after the winning CAS
//   - Run race-enabled tests: they also enable guard lifetime checking
//
// # See Also
//
// For engine internals, see the internal/core and
// internal/concurrency/epoch packages.
package ebr

import (
	"time"

	"github.com/kianostad/ebr/internal/concurrency/epoch"
	engine "github.com/kianostad/ebr/internal/core"
)

// Re-export engine types for client data structures
type (
	// Collector owns an epoch coordinator and its metrics
	Collector = engine.Collector

	// Participant is the per-goroutine registration record
	Participant = epoch.Participant

	// Guard is the scoped participation token produced by Pin
	Guard = engine.Guard

	// Stats is a snapshot of a collector's protocol counters
	Stats = epoch.Stats

	// Ordering names the memory ordering an operation requires
	Ordering = engine.Ordering

	// Owned is a pointer with sole, not-yet-published ownership
	Owned[T any] = engine.Owned[T]

	// Shared is a non-owning reference bound to a guard's lifetime
	Shared[T any] = engine.Shared[T]

	// Atomic is the single mutable pointer slot embedded in a structure
	Atomic[T any] = engine.Atomic[T]
)

// DefaultGarbageThreshold is the per-participant deferred-record count that
// triggers an opportunistic collection on pin.
const DefaultGarbageThreshold = epoch.DefaultGarbageThreshold

// Memory orderings accepted by the pointer triad.
const (
	Relaxed = engine.Relaxed
	Acquire = engine.Acquire
	Release = engine.Release
	AcqRel  = engine.AcqRel
	SeqCst  = engine.SeqCst
)

// NewCollector creates an independent collector. Most programs can use the
// process-wide default instead.
func NewCollector(opts ...Option) *Collector {
	return engine.NewCollector(opts...)
}

// Option configures a Collector.
type Option = engine.Option

// WithGarbageThreshold sets the per-participant garbage threshold.
func WithGarbageThreshold(n int) Option {
	return engine.WithGarbageThreshold(n)
}

// WithCollectInterval sets the background collection interval.
func WithCollectInterval(d time.Duration) Option {
	return engine.WithCollectInterval(d)
}

// NewOwned allocates a new heap block holding v and takes sole ownership.
func NewOwned[T any](v T) Owned[T] {
	return engine.NewOwned(v)
}

// Unlinked files the address behind s for deferred deallocation by free.
// Trusted operation; see the engine package for the full contract.
func Unlinked[T any](g *Guard, s Shared[T], free func(*T)) {
	engine.Unlinked(g, s, free)
}

// defaultCollector is the process-wide collector shared by all data
// structures that do not construct their own. It lives for the process
// lifetime; OS process exit reclaims everything, so there is no shutdown
// API.
var defaultCollector = engine.NewCollector()

// DefaultCollector returns the process-wide collector.
func DefaultCollector() *Collector {
	return defaultCollector
}

// Register adds a participant for the calling goroutine on the process-wide
// collector.
func Register() *Participant {
	return defaultCollector.Register()
}

// ForceCollect runs an immediate collection cycle on the process-wide
// collector.
func ForceCollect() {
	defaultCollector.ForceCollect()
}
