// Licensed under the MIT License. See LICENSE file in the project root for details.

package tests

import (
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/goleak"

	"github.com/kianostad/ebr"
)

// TestRaceDetection exercises every engine surface concurrently so the race
// detector can vet the protocol's synchronization. Race-enabled runs also
// turn on guard lifetime checking for every Shared dereference.
func TestRaceDetection(t *testing.T) {
	defer goleak.VerifyNone(t)

	Convey("Given a shared stack and collector", t, func() {
		c := ebr.NewCollector(ebr.WithGarbageThreshold(16))
		s := newStack(c)

		Convey("When goroutines mix pushes, pops, reads and collections", func() {
			var wg sync.WaitGroup
			const numGoroutines = 8
			const numOps = 500

			for i := 0; i < numGoroutines; i++ {
				wg.Add(1)
				go func(id int) {
					defer wg.Done()
					p := c.Register()
					defer p.Deregister()

					for j := 0; j < numOps; j++ {
						switch j % 4 {
						case 0:
							s.push(p, id*numOps+j)
						case 1:
							s.pop(p)
						case 2:
							g := p.Pin()
							sn := s.top.Load(ebr.Acquire, g)
							if !sn.IsNil() {
								_ = sn.Deref().val
							}
							g.Unpin()
						case 3:
							c.ForceCollect()
						}
					}
				}(i)
			}

			wg.Wait()

			Convey("Then the structure is still consistent", func() {
				p := c.Register()
				s.push(p, 42)
				v, ok := s.pop(p)
				So(ok, ShouldBeTrue)
				So(v, ShouldEqual, 42)

				s.drain(p)
				p.Deregister()
				quiesce(c)
				So(s.freed.Load(), ShouldEqual, s.unlinked.Load())
			})
		})
	})
}

// TestRaceBackgroundCollector runs the background loop underneath a mutating
// workload.
func TestRaceBackgroundCollector(t *testing.T) {
	defer goleak.VerifyNone(t)

	Convey("Given a collector with its background loop running", t, func() {
		c := ebr.NewCollector(ebr.WithCollectInterval(time.Millisecond))
		s := newStack(c)
		c.Start()

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				p := c.Register()
				defer p.Deregister()
				for j := 0; j < 1000; j++ {
					s.push(p, j)
					s.pop(p)
				}
			}(i)
		}
		wg.Wait()
		c.Stop()

		Convey("Then reclamation catches up after the workload", func() {
			quiesce(c)
			So(s.freed.Load(), ShouldEqual, s.unlinked.Load())
		})
	})
}
