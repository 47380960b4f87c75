// Licensed under the MIT License. See LICENSE file in the project root for details.

package epoch

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Participant is the per-goroutine record of engine participation: the
// packed active/epoch status word read by other goroutines during agreement
// scans, and the goroutine-private garbage bags and pin bookkeeping.
//
// A Participant belongs to exactly one goroutine from Register to
// Deregister. The coordinator holds only a non-owning membership reference
// for scanning.
type Participant struct {
	// state is the only field other goroutines read. It is padded onto its
	// own cache line so agreement scans do not false-share with the owner's
	// bookkeeping writes.
	state atomic.Uint32
	_     cpu.CacheLinePad

	c  *Coordinator
	id uint64

	// Owner-goroutine state. Never touched by other goroutines.
	pinDepth int
	gen      uint64 // bumped on outermost unpin; validates Shared lifetimes
	lastSeen Epoch  // global epoch at the end of the previous collection
	garbage  int    // records across all local bags
	bags     [epochCount]*bag
	guard    Guard
}

// ID returns the participant's registry identifier.
func (p *Participant) ID() uint64 {
	return p.id
}

// Pin marks the participant active at the current global epoch and returns
// its guard. Pins nest: inner pins return the same guard and only the
// outermost pin publishes the active status or triggers collection. Pin
// never blocks.
func (p *Participant) Pin() *Guard {
	p.pinDepth++
	if p.pinDepth > 1 {
		return &p.guard
	}

	e := p.c.GlobalEpoch()
	// Publishing an epoch that is already one step stale is conservative: it
	// can only delay the next advance, never validate a dead pointer.
	p.state.Store(uint32(makeStatus(e, true)))
	p.c.pins.Add(1)

	if e != p.lastSeen || p.garbage >= p.c.threshold {
		e = p.collect(e)
	}
	p.lastSeen = e
	return &p.guard
}

// collect runs one opportunistic collection cycle. cur is the caller's
// snapshot of the global epoch; the participant's published epoch may be one
// step behind it. It returns the epoch the cycle certified, for lastSeen
// bookkeeping.
func (p *Participant) collect(cur Epoch) Epoch {
	if next, ok := p.c.tryAdvance(); ok {
		// Sweep the fallback lists before republishing: while this
		// participant still agrees with the pre-advance epoch, the global
		// counter cannot move again, so nothing freshly filed can land in
		// the slot being swept.
		p.c.sweepFallback(next)
		p.state.Store(uint32(makeStatus(next, true)))
		cur = next
	}
	// Every local record was filed at or before cur, so the slot two steps
	// behind cur holds nothing younger than two advances. Deriving the slot
	// from the published epoch instead would free the current global slot
	// whenever the participant lags one step.
	p.freeLocal(cur.reclaimable())
	return cur
}

// freeLocal frees the participant's own bag at the given index. The bag
// holds only records this goroutine filed at epochs congruent with idx, all
// of which are at least two advances old by the time idx is reclaimable.
func (p *Participant) freeLocal(idx Epoch) {
	b := p.bags[idx]
	if b == nil || len(b.records) == 0 {
		return
	}
	n := b.run()
	p.garbage -= n
	p.c.freed.Add(uint64(n))
}

// file appends a deferred-free record to the bag for epoch e, creating the
// bag on first use. Owner goroutine only.
func (p *Participant) file(e Epoch, r deferredFree) {
	b := p.bags[e]
	if b == nil {
		b = newBag()
		p.bags[e] = b
	}
	b.records = append(b.records, r)
	p.garbage++
	p.c.unlinked.Add(1)
}

// Deregister removes the participant from the coordinator's membership set.
// Unflushed garbage bags are moved into the coordinator's global fallback
// lists, where any future successful epoch advance will free them.
//
// The participant must not be pinned and must not be used again afterwards.
func (p *Participant) Deregister() {
	if p.pinDepth != 0 {
		panic("ebr: Deregister called while pinned")
	}
	p.c.adoptBags(&p.bags)
	p.garbage = 0
	p.c.participants.Delete(p.id)
}
