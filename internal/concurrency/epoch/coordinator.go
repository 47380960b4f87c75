// Licensed under the MIT License. See LICENSE file in the project root for details.

package epoch

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sys/cpu"
)

// DefaultGarbageThreshold is the number of locally filed deferred-free
// records above which a pin attempts to advance the global epoch.
const DefaultGarbageThreshold = 64

// Coordinator owns the global epoch counter and the membership set of
// registered participants. One Coordinator is shared by every data structure
// that reclaims through it; all of its shared state is mutated exclusively
// through atomic instructions.
type Coordinator struct {
	global atomic.Uint32 // Epoch value, always in {0,1,2}
	_      cpu.CacheLinePad

	// fallback holds garbage orphaned by deregistered participants,
	// indexed by the epoch value the garbage was filed under.
	fallback [epochCount]bagList

	participants *xsync.MapOf[uint64, *Participant]
	nextID       atomic.Uint64

	threshold int

	// counters feed the monitoring layer; they never influence protocol
	// decisions.
	pins         atomic.Uint64
	advances     atomic.Uint64
	unlinked     atomic.Uint64
	freed        atomic.Uint64
	fallbackBags atomic.Uint64
}

// NewCoordinator creates a coordinator with the default garbage threshold.
func NewCoordinator() *Coordinator {
	return NewCoordinatorWithThreshold(DefaultGarbageThreshold)
}

// NewCoordinatorWithThreshold creates a coordinator whose participants
// attempt collection once their local garbage reaches threshold records.
func NewCoordinatorWithThreshold(threshold int) *Coordinator {
	if threshold <= 0 {
		threshold = DefaultGarbageThreshold
	}
	return &Coordinator{
		participants: xsync.NewMapOf[uint64, *Participant](),
		threshold:    threshold,
	}
}

// GlobalEpoch returns the current value of the global epoch.
func (c *Coordinator) GlobalEpoch() Epoch {
	return Epoch(c.global.Load())
}

// Register adds a new participant to the membership set and returns it.
// Registration never fails; the registry grows amortized. The returned
// participant belongs to the calling goroutine.
func (c *Coordinator) Register() *Participant {
	p := &Participant{
		c:        c,
		id:       c.nextID.Add(1),
		lastSeen: c.GlobalEpoch(),
	}
	p.guard.p = p
	// A fresh participant starts inactive at the current epoch so that it is
	// skipped by agreement checks until its first pin.
	p.state.Store(uint32(makeStatus(c.GlobalEpoch(), false)))
	c.participants.Store(p.id, p)
	return p
}

// tryAdvance scans every registered participant and advances the global
// epoch by one step if all currently active participants agree with the
// present value. It returns the epoch now in effect and whether this call
// performed the advance.
//
// The scan skips participants that deregistered mid-iteration (the registry
// Range tolerates concurrent deletes). Concurrent callers race on a single
// CAS; losers observe that the epoch was already advanced by someone else.
func (c *Coordinator) tryAdvance() (Epoch, bool) {
	cur := c.GlobalEpoch()
	agreed := true
	c.participants.Range(func(_ uint64, p *Participant) bool {
		s := status(p.state.Load())
		if s.active() && s.epoch() != cur {
			agreed = false
			return false
		}
		return true
	})
	if !agreed {
		return cur, false
	}
	// The caller is pinned at cur, so at most one advance can happen between
	// the load above and this CAS: a wrapped-around value cannot reappear
	// while we hold the previous epoch in place.
	if !c.global.CompareAndSwap(uint32(cur), uint32(cur.Next())) {
		return c.GlobalEpoch(), false
	}
	c.advances.Add(1)
	return cur.Next(), true
}

// sweepFallback drains and frees the fallback list that became reclaimable
// when the global epoch advanced to cur.
//
// Only the advancing participant calls this, and it does so while still
// published at the previous epoch. That holds the global counter in place:
// no new garbage congruent with the swept slot can be filed concurrently, so
// every drained bag is at least two advances old.
func (c *Coordinator) sweepFallback(cur Epoch) {
	idx := cur.reclaimable()
	for b := c.fallback[idx].drain(); b != nil; {
		next := b.next
		c.freed.Add(uint64(b.run()))
		recycleBag(b)
		b = next
	}
}

// adoptBags moves a deregistering participant's unflushed bags into the
// global fallback lists. The bags are moved, never mutated in place; after
// the move only a sweep touches them.
func (c *Coordinator) adoptBags(bags *[epochCount]*bag) {
	for i := range bags {
		b := bags[i]
		bags[i] = nil
		if b == nil {
			continue
		}
		if len(b.records) == 0 {
			recycleBag(b)
			continue
		}
		c.fallback[i].push(b)
		c.fallbackBags.Add(1)
	}
}

// Stats is a point-in-time snapshot of the coordinator's counters.
type Stats struct {
	GlobalEpoch  Epoch
	Participants int
	Pins         uint64
	Advances     uint64
	Unlinked     uint64
	Freed        uint64
	FallbackBags uint64
}

// Stats returns a snapshot of the coordinator's counters. The fields are
// read independently and need not be mutually consistent.
func (c *Coordinator) Stats() Stats {
	return Stats{
		GlobalEpoch:  c.GlobalEpoch(),
		Participants: c.participants.Size(),
		Pins:         c.pins.Load(),
		Advances:     c.advances.Load(),
		Unlinked:     c.unlinked.Load(),
		Freed:        c.freed.Load(),
		FallbackBags: c.fallbackBags.Load(),
	}
}
