// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package engine provides the public face of the epoch-based reclamation
// engine: the Collector that owns a coordinator, and the Owned/Shared/Atomic
// pointer triad that ties memory lifetime to guard scope.
//
// # The Pointer Triad
//
//   - Owned[T] represents sole, not-yet-published ownership of a heap block.
//     It exists from allocation until it is published into an Atomic slot or
//     dropped.
//   - Shared[T] is a non-owning reference to possibly-published data, valid
//     only while the guard it was read under stays pinned. Shared values are
//     plain copyable values.
//   - Atomic[T] is the single mutable slot embedded in a data structure. All
//     mutation goes through atomic instructions; a Shared can only be minted
//     by reading an Atomic through a live guard.
//
// # Usage Examples
//
// Publishing a node and reading it back:
//
//	var slot engine.Atomic[node]
//
//	g := p.Pin()
//	slot.Store(engine.NewOwned(node{v: 1}), engine.Release)
//	s := slot.Load(engine.Acquire, g)
//	_ = s.Deref().v
//	g.Unpin()
//
// Unlinking with a CAS and deferring reclamation:
//
//	g := p.Pin()
//	head := slot.Load(engine.Acquire, g)
//	if slot.CasShared(head, next, engine.AcqRel) {
//	    engine.Unlinked(g, head, func(n *node) { nodePool.Put(n) })
//	}
//	g.Unpin()
//
// # Memory Ordering
//
// Every operation accepts an Ordering that documents the acquire/release
// semantics the algorithm requires. Go's sync/atomic implements sequentially
// consistent operations only, which satisfies (never weakens) any requested
// ordering; the parameter is kept so algorithms state their requirements
// explicitly and ports to weaker memory models stay mechanical.
//
// # Dangers and Warnings
//
//   - **CAS consumes Owned on success only**: a failed Cas leaves ownership
//     of new with the caller, who is expected to retry. Contention is normal
//     control flow, not an error.
//   - **Shared outlives nothing**: dereferencing a Shared after its guard
//     unpins is a contract violation. Race-enabled builds check every
//     dereference and panic; regular builds do not pay for the check.
//   - **Unlinked is trusted**: file an address exactly once, only after the
//     CAS that removed its last reachable link.
//
// # See Also
//
// For the coordination protocol underneath, see the epoch package.
package engine

import (
	"sync/atomic"
	"unsafe"

	"github.com/kianostad/ebr/internal/concurrency/epoch"
)

// Ordering names the memory ordering an operation requires, paralleling
// acquire/release/relaxed semantics. See the package documentation for how
// these map onto Go's atomics.
type Ordering uint8

const (
	Relaxed Ordering = iota
	Acquire
	Release
	AcqRel
	SeqCst
)

// Guard is the scoped participation token; see the epoch package.
type Guard = epoch.Guard

// Owned is a pointer with sole, not-yet-published ownership. The zero value
// is the null Owned.
type Owned[T any] struct {
	p *T
}

// NewOwned allocates a new heap block holding v and takes sole ownership of
// it. No synchronization is involved.
func NewOwned[T any](v T) Owned[T] {
	return Owned[T]{p: &v}
}

// Deref returns the owned value for initialization before publication. The
// caller is the only one who can reach it, so plain loads and stores are
// fine.
func (o Owned[T]) Deref() *T {
	return o.p
}

// IsNil reports whether o is the null Owned.
func (o Owned[T]) IsNil() bool {
	return o.p == nil
}

// Shared is a non-owning reference bound to the guard it was read under.
// Shared values may be copied freely; all copies expire together when the
// guard unpins.
type Shared[T any] struct {
	p   *T
	g   *Guard
	gen uint64
}

// sharedOf mints a Shared bound to g's current generation.
func sharedOf[T any](p *T, g *Guard) Shared[T] {
	return Shared[T]{p: p, g: g, gen: g.Generation()}
}

// IsNil reports whether s is the null pointer.
func (s Shared[T]) IsNil() bool {
	return s.p == nil
}

// Deref returns the referenced value. In race-enabled builds it panics if
// the originating guard has been released since the pointer was minted.
func (s Shared[T]) Deref() *T {
	if guardChecks {
		s.check()
	}
	return s.p
}

// Pointer returns the raw pointer without a liveness check. Intended for
// identity comparisons, not reads.
func (s Shared[T]) Pointer() *T {
	return s.p
}

func (s Shared[T]) check() {
	if s.p == nil {
		return
	}
	if s.g == nil || s.g.Expired(s.gen) {
		panic("ebr: Shared dereferenced outside its guard's lifetime")
	}
}

// Atomic is the single mutable pointer slot embedded in a lock-free data
// structure. The zero value holds null.
type Atomic[T any] struct {
	p atomic.Pointer[T]
}

// Load atomically reads the slot through a live guard and returns a Shared
// bound to that guard's lifetime. The guard argument is the sole mechanism
// by which validity is proven: the returned pointer must not outlive the
// pinning.
func (a *Atomic[T]) Load(ord Ordering, g *Guard) Shared[T] {
	return sharedOf(a.p.Load(), g)
}

// Store unconditionally publishes new data, transferring ownership of o into
// the structure. Storing the zero Owned publishes null. No guard is needed:
// no new lifetime claim is produced.
func (a *Atomic[T]) Store(o Owned[T], ord Ordering) {
	a.p.Store(o.p)
}

// StoreShared publishes an already-published pointer into the slot, for
// linking a new node to existing data before the node itself is published.
// No ownership moves.
func (a *Atomic[T]) StoreShared(s Shared[T], ord Ordering) {
	a.p.Store(s.p)
}

// StoreAndRef publishes o and immediately returns a bound read of the same
// address, for algorithms that link a node and keep operating on it.
func (a *Atomic[T]) StoreAndRef(o Owned[T], ord Ordering, g *Guard) Shared[T] {
	a.p.Store(o.p)
	return sharedOf(o.p, g)
}

// Cas atomically replaces old with new. On success the structure owns new
// and the Owned must not be reused. On failure ownership of new stays with
// the caller, who retries with a fresh expectation; nothing is leaked.
func (a *Atomic[T]) Cas(old Shared[T], new Owned[T], ord Ordering) bool {
	return a.p.CompareAndSwap(old.p, new.p)
}

// CasAndRef is Cas plus a bound read of the published address on success.
func (a *Atomic[T]) CasAndRef(old Shared[T], new Owned[T], ord Ordering, g *Guard) (Shared[T], bool) {
	if !a.p.CompareAndSwap(old.p, new.p) {
		return Shared[T]{}, false
	}
	return sharedOf(new.p, g), true
}

// CasShared swaps one already-published pointer for another. No ownership
// moves: both ends are non-owning references.
func (a *Atomic[T]) CasShared(old, new Shared[T], ord Ordering) bool {
	return a.p.CompareAndSwap(old.p, new.p)
}

// Unlinked files the address behind s for deferred deallocation by free.
// The caller asserts it has just atomically removed the sole reachable link
// to that address; see Guard.Unlinked for the full contract. free receives
// the typed pointer once the epoch protocol certifies no guard can still
// reach it. A nil free defers only the reference drop.
func Unlinked[T any](g *Guard, s Shared[T], free func(*T)) {
	if s.p == nil {
		return
	}
	if free == nil {
		g.Unlinked(unsafe.Pointer(s.p), nil)
		return
	}
	g.Unlinked(unsafe.Pointer(s.p), func(p unsafe.Pointer) {
		free((*T)(p))
	})
}
