// Licensed under the MIT License. See LICENSE file in the project root for details.

package epoch

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestEpochArithmetic(t *testing.T) {
	Convey("Given the three epoch values", t, func() {
		Convey("Next should cycle 0 -> 1 -> 2 -> 0", func() {
			So(Epoch(0).Next(), ShouldEqual, Epoch(1))
			So(Epoch(1).Next(), ShouldEqual, Epoch(2))
			So(Epoch(2).Next(), ShouldEqual, Epoch(0))
		})

		Convey("The reclaimable slot should be two steps behind", func() {
			// (e+1) mod 3 is congruent to e-2
			So(Epoch(0).reclaimable(), ShouldEqual, Epoch(1))
			So(Epoch(1).reclaimable(), ShouldEqual, Epoch(2))
			So(Epoch(2).reclaimable(), ShouldEqual, Epoch(0))
		})
	})
}

func TestStatusWord(t *testing.T) {
	Convey("Given a packed status word", t, func() {
		Convey("It should round-trip epoch and active flag", func() {
			for e := Epoch(0); e < epochCount; e++ {
				s := makeStatus(e, true)
				So(s.active(), ShouldBeTrue)
				So(s.epoch(), ShouldEqual, e)

				s = makeStatus(e, false)
				So(s.active(), ShouldBeFalse)
				So(s.epoch(), ShouldEqual, e)
			}
		})

		Convey("Deactivation should preserve the epoch bits", func() {
			s := makeStatus(2, true).deactivate()
			So(s.active(), ShouldBeFalse)
			So(s.epoch(), ShouldEqual, Epoch(2))
		})
	})
}
