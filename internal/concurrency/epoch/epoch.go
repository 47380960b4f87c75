// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package epoch implements epoch-based memory reclamation for lock-free
// data structures.
//
// This package provides the coordination core of the reclamation engine: a
// global three-value epoch counter, a registry of participating goroutines,
// scoped guards that bound the validity of shared pointers, and per-epoch
// garbage bags whose contents are freed once no participant can still
// observe them.
//
// # Key Features
//
//   - Global epoch with exactly three values, advanced by a single CAS
//   - Per-participant status words packing the active flag and local epoch
//   - Scoped guards with nestable pinning and guaranteed-release semantics
//   - Deferred-free records filed under the current global epoch
//   - Opportunistic collection on pin, no dedicated collector thread
//   - Global fallback garbage lists for participants that deregister early
//
// # Usage Examples
//
// Registering a participant and pinning:
//
//	c := epoch.NewCoordinator()
//	p := c.Register()
//	defer p.Deregister()
//
//	g := p.Pin()
//	// ... read shared pointers, file unlinked nodes ...
//	g.Unpin()
//
// Filing an unlinked node for deferred reclamation:
//
//	g := p.Pin()
//	// node was just unlinked by a successful CAS
//	g.Unlinked(unsafe.Pointer(node), freeNode)
//	g.Unpin()
//
// # Why Three Epochs
//
// At any pin, a participant observes at most two distinct epoch values among
// all active participants: its own snapshot and possibly the global value one
// step ahead. Reserving a third slot separates "epoch garbage was created in"
// from "epoch currently being certified" from "epoch provably unreachable",
// which is the minimum that absorbs this one-step skew safely. Garbage filed
// under epoch E becomes reclaimable once the global epoch reaches E+2 (mod 3).
//
// # Dangers and Warnings
//
//   - **Unlinked is a trusted operation**: the caller asserts it removed the
//     sole reachable link and that no other goroutine will file the same
//     address. Filing twice frees twice.
//   - **Straggling participants**: a participant that stays pinned forever
//     prevents epoch advancement and bounds memory only amortized, never
//     worst-case. This is a property of the protocol, not an error.
//   - **Ownership**: a Participant belongs to exactly one goroutine. Only
//     Deregister and the fallback sweep may touch its bags from elsewhere,
//     and only via move semantics.
//
// # Thread Safety
//
// The Coordinator and its registry are safe for concurrent use. Participants
// and Guards are single-goroutine objects; cross-goroutine use of either is
// a contract violation.
//
// # See Also
//
// For the typed pointer API built on guards, see the core package.
package epoch

// epochCount is the number of distinct epoch values. Three is the minimum
// that separates the garbage-creation epoch, the epoch being certified, and
// the provably unreachable epoch.
const epochCount = 3

// Epoch is one of the three cyclic logical time values. The zero value is a
// valid epoch.
type Epoch uint32

// Next returns the epoch one step ahead, wrapping modulo three.
func (e Epoch) Next() Epoch {
	return (e + 1) % epochCount
}

// reclaimable returns the bag index that is at least two advances behind e.
// With three epochs, (e+1) mod 3 is congruent to e-2, so the slot one ahead
// of the current epoch is exactly the one whose garbage is unreachable.
func (e Epoch) reclaimable() Epoch {
	return e.Next()
}

// status packs a participant's active flag and local epoch into a single
// word so that tryAdvance reads both with one atomic load.
type status uint32

const statusActive status = 1 // bit 0; epoch lives in bits 1-2

func makeStatus(e Epoch, active bool) status {
	s := status(e) << 1
	if active {
		s |= statusActive
	}
	return s
}

func (s status) active() bool {
	return s&statusActive != 0
}

func (s status) epoch() Epoch {
	return Epoch(s >> 1)
}

func (s status) deactivate() status {
	return s &^ statusActive
}
