// Licensed under the MIT License. See LICENSE file in the project root for details.

package metrics

import (
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestDurationRingBuffer(t *testing.T) {
	Convey("Given a ring buffer of capacity 3", t, func() {
		rb := NewDurationRingBuffer(3)

		Convey("Empty buffer yields zero stats", func() {
			So(rb.GetStats(), ShouldResemble, LatencyStats{})
		})

		Convey("With samples inside capacity", func() {
			rb.Push(10 * time.Millisecond)
			rb.Push(20 * time.Millisecond)
			rb.Push(30 * time.Millisecond)

			stats := rb.GetStats()
			So(stats.Count, ShouldEqual, 3)
			So(stats.Min, ShouldEqual, 10*time.Millisecond)
			So(stats.Max, ShouldEqual, 30*time.Millisecond)
			So(stats.Mean, ShouldEqual, 20*time.Millisecond)
			So(stats.P50, ShouldEqual, 20*time.Millisecond)
		})

		Convey("Overflow evicts the oldest sample", func() {
			rb.Push(10 * time.Millisecond)
			rb.Push(20 * time.Millisecond)
			rb.Push(30 * time.Millisecond)
			rb.Push(40 * time.Millisecond)

			stats := rb.GetStats()
			So(stats.Count, ShouldEqual, 3)
			So(stats.Min, ShouldEqual, 20*time.Millisecond)
			So(stats.Max, ShouldEqual, 40*time.Millisecond)
		})
	})
}

func TestMetrics(t *testing.T) {
	Convey("Given a metrics instance", t, func() {
		m := New()

		Convey("Recording collections updates the snapshot", func() {
			m.RecordCollection(5 * time.Millisecond)
			m.RecordCollection(15 * time.Millisecond)

			snap := m.Snapshot()
			So(snap.Collections, ShouldEqual, 2)
			So(snap.Latency.Count, ShouldEqual, 2)
			So(snap.Latency.Min, ShouldEqual, 5*time.Millisecond)
			So(snap.Latency.Max, ShouldEqual, 15*time.Millisecond)
		})

		Convey("Gauges and counters appear in Prometheus output", func() {
			m.Gauge("ebr_test_gauge", func() float64 { return 42 })
			m.RecordCollection(time.Millisecond)

			var sb strings.Builder
			m.WritePrometheus(&sb)
			out := sb.String()

			So(out, ShouldContainSubstring, "ebr_test_gauge 42")
			So(out, ShouldContainSubstring, "ebr_collections_total 1")
		})
	})
}
