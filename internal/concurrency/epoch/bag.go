// Licensed under the MIT License. See LICENSE file in the project root for details.

package epoch

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// deferredFree records a single address awaiting deallocation together with
// the routine that deallocates it. A record is added to exactly one bag and
// its routine runs exactly once.
type deferredFree struct {
	ptr  unsafe.Pointer
	free func(unsafe.Pointer)
}

// bag is an ordered sequence of deferred-free records filed under a single
// epoch value. Bags are mutated only by their owning goroutine; a sealed bag
// in a global fallback list is never mutated again, only drained by a sweep.
type bag struct {
	records []deferredFree
	next    *bag // link in a global fallback list
}

// run invokes every record's deallocation routine and returns the number of
// records freed.
func (b *bag) run() int {
	n := len(b.records)
	for i := range b.records {
		r := &b.records[i]
		if r.free != nil {
			r.free(r.ptr)
		}
		r.ptr = nil
		r.free = nil
	}
	b.records = b.records[:0]
	return n
}

// bagPool recycles bag backing arrays across collection cycles.
var bagPool = sync.Pool{
	New: func() interface{} {
		return &bag{records: make([]deferredFree, 0, 16)}
	},
}

func newBag() *bag {
	return bagPool.Get().(*bag)
}

func recycleBag(b *bag) {
	b.records = b.records[:0]
	b.next = nil
	bagPool.Put(b)
}

// bagList is a lock-free push list of sealed bags, one per epoch value,
// holding garbage orphaned by deregistered participants until a successful
// epoch advance sweeps it.
type bagList struct {
	head atomic.Pointer[bag]
}

// push adds a sealed bag. Lock-free; concurrent pushers retry the CAS.
func (l *bagList) push(b *bag) {
	for {
		old := l.head.Load()
		b.next = old
		if l.head.CompareAndSwap(old, b) {
			return
		}
	}
}

// drain detaches and returns the whole list in a single swap. The caller
// owns every returned bag exclusively.
func (l *bagList) drain() *bag {
	return l.head.Swap(nil)
}

// empty reports whether the list currently holds no bags.
func (l *bagList) empty() bool {
	return l.head.Load() == nil
}
