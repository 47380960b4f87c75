// Licensed under the MIT License. See LICENSE file in the project root for details.

package epoch

import "unsafe"

// Guard is the scoped participation token produced by Pin. While a guard is
// live, every pointer read through it remains valid: the owning participant
// is active and the global epoch can move at most one step ahead of its
// snapshot.
//
// A Guard has no state of its own beyond the back-reference to its
// participant; the same guard value is returned for nested pins. Release it
// with Unpin on every exit path, typically via defer.
type Guard struct {
	p *Participant
}

// Unpin releases one level of pinning. The outermost release clears the
// participant's active flag and invalidates every Shared pointer minted
// under this guard. No epoch bookkeeping happens on release; an inactive
// participant is simply excluded from agreement checks until pinned again.
func (g *Guard) Unpin() {
	p := g.p
	if p.pinDepth == 0 {
		panic("ebr: Unpin without matching Pin")
	}
	p.pinDepth--
	if p.pinDepth == 0 {
		p.gen++
		p.state.Store(uint32(status(p.state.Load()).deactivate()))
	}
}

// Unlinked files ptr for deferred deallocation by free.
//
// This is a trusted operation: the caller asserts that it has just atomically
// removed the sole reachable link to ptr and that no other goroutine will
// also file the same address. The record is filed under the CURRENT global
// epoch, not the participant's local snapshot; if the global epoch has
// already advanced past the snapshot, filing under the fresher value is what
// keeps the two-epochs-back rule correct.
//
// The engine never finalizes the payload: free is responsible for storage
// only, and any payload-level teardown must be performed by the caller
// before or during this call.
func (g *Guard) Unlinked(ptr unsafe.Pointer, free func(unsafe.Pointer)) {
	p := g.p
	if p.pinDepth == 0 {
		panic("ebr: Unlinked outside a pinned section")
	}
	p.file(p.c.GlobalEpoch(), deferredFree{ptr: ptr, free: free})
}

// Defer files an arbitrary deferred call under the current global epoch. It
// runs once the epoch has advanced far enough that no participant pinned at
// filing time can still be active. Same trust contract as Unlinked.
func (g *Guard) Defer(fn func()) {
	p := g.p
	if p.pinDepth == 0 {
		panic("ebr: Defer outside a pinned section")
	}
	p.file(p.c.GlobalEpoch(), deferredFree{free: func(unsafe.Pointer) { fn() }})
}

// Flush attempts an epoch advance and frees whatever became reclaimable,
// regardless of the garbage threshold. Useful before long unpinned periods.
//
// The cycle starts from the current global epoch, not the participant's
// published one: the two can differ by one step while pinned, and records
// filed in the meantime belong to the fresher value.
func (g *Guard) Flush() {
	p := g.p
	if p.pinDepth == 0 {
		panic("ebr: Flush outside a pinned section")
	}
	p.lastSeen = p.collect(p.c.GlobalEpoch())
}

// Generation returns the guard's current generation. A Shared pointer
// records the generation at mint time and is expired once it differs.
func (g *Guard) Generation() uint64 {
	return g.p.gen
}

// Expired reports whether a pointer minted at generation gen is no longer
// protected by this guard.
func (g *Guard) Expired(gen uint64) bool {
	return g.p.pinDepth == 0 || g.p.gen != gen
}
