// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package metrics provides performance monitoring and observability for the
// epoch-based reclamation engine.
//
// This package tracks collection cycles and their latencies with a bounded
// ring buffer, and exposes the engine's protocol counters (pins, epoch
// advances, unlinked and freed records) as Prometheus metrics through a
// VictoriaMetrics set.
//
// # Key Features
//
//   - Collection cycle counting and latency tracking with percentiles
//   - Bounded memory usage through ring buffers
//   - Callback gauges over the coordinator's atomic counters
//   - Prometheus text exposition via WritePrometheus
//
// # Usage Examples
//
// Creating and using metrics:
//
//	m := metrics.New()
//	m.Gauge("ebr_pins", func() float64 { return float64(stats().Pins) })
//
//	start := time.Now()
//	// ... run a collection cycle ...
//	m.RecordCollection(time.Since(start))
//
//	snap := m.Snapshot()
//	fmt.Printf("collections: %d, p99: %v\n", snap.Collections, snap.Latency.P99)
//
//	// Export to a monitoring system
//	m.WritePrometheus(w)
//
// # Thread Safety
//
// All operations are safe for concurrent use. Recording a collection takes a
// short mutex on the ring buffer; gauges read lock-free atomic counters.
//
// # See Also
//
// For the counters behind the gauges, see the epoch package's Stats.
package metrics

import (
	"io"
	"sort"
	"sync"
	"time"

	vm "github.com/VictoriaMetrics/metrics"
)

// LatencyStats provides latency statistics over the recent window held by a
// ring buffer.
type LatencyStats struct {
	Count uint64        `json:"count"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Mean  time.Duration `json:"mean"`
	P50   time.Duration `json:"p50"`
	P95   time.Duration `json:"p95"`
	P99   time.Duration `json:"p99"`
}

// Snapshot is a point-in-time view of the engine's collection metrics.
type Snapshot struct {
	Collections uint64       `json:"collections"`
	Latency     LatencyStats `json:"latency"`
}

// DurationRingBuffer is a thread-safe bounded ring buffer of durations.
type DurationRingBuffer struct {
	buffer []time.Duration
	head   int
	tail   int
	size   int
	count  int
	mu     sync.RWMutex
}

// NewDurationRingBuffer creates a ring buffer with the given capacity.
func NewDurationRingBuffer(capacity int) *DurationRingBuffer {
	return &DurationRingBuffer{
		buffer: make([]time.Duration, capacity),
		size:   capacity,
	}
}

// Push adds an item, evicting the oldest once full.
func (rb *DurationRingBuffer) Push(item time.Duration) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.buffer[rb.tail] = item
	rb.tail = (rb.tail + 1) % rb.size

	if rb.count < rb.size {
		rb.count++
	} else {
		rb.head = (rb.head + 1) % rb.size
	}
}

// GetStats calculates latency statistics over the buffered window.
func (rb *DurationRingBuffer) GetStats() LatencyStats {
	rb.mu.RLock()
	// Copy values to avoid holding the lock during sort
	values := make([]time.Duration, rb.count)
	for i := 0; i < rb.count; i++ {
		idx := (rb.head + i) % rb.size
		values[i] = rb.buffer[idx]
	}
	rb.mu.RUnlock()

	if len(values) == 0 {
		return LatencyStats{}
	}

	sort.Slice(values, func(i, j int) bool {
		return values[i] < values[j]
	})

	stats := LatencyStats{
		Count: uint64(len(values)),
		Min:   values[0],
		Max:   values[len(values)-1],
	}

	var total time.Duration
	for _, v := range values {
		total += v
	}
	stats.Mean = total / time.Duration(len(values))

	stats.P50 = percentile(values, 0.50)
	stats.P95 = percentile(values, 0.95)
	stats.P99 = percentile(values, 0.99)
	return stats
}

// percentile returns the nth percentile from sorted values.
func percentile(values []time.Duration, p float64) time.Duration {
	if len(values) == 0 {
		return 0
	}
	index := int(float64(len(values)-1) * p)
	if index >= len(values) {
		index = len(values) - 1
	}
	return values[index]
}

// Metrics tracks collection activity and exposes engine counters.
type Metrics struct {
	set         *vm.Set
	collections *vm.Counter
	latency     *DurationRingBuffer
}

// New creates a metrics instance with a 1024-sample latency window.
func New() *Metrics {
	set := vm.NewSet()
	return &Metrics{
		set:         set,
		collections: set.NewCounter("ebr_collections_total"),
		latency:     NewDurationRingBuffer(1024),
	}
}

// Gauge registers a callback gauge under the given name. The callback must
// be safe to invoke from any goroutine at exposition time.
func (m *Metrics) Gauge(name string, fn func() float64) {
	m.set.NewGauge(name, fn)
}

// RecordCollection records one completed collection cycle.
func (m *Metrics) RecordCollection(d time.Duration) {
	m.collections.Inc()
	m.latency.Push(d)
}

// Snapshot returns a point-in-time view of the collection metrics.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Collections: m.collections.Get(),
		Latency:     m.latency.GetStats(),
	}
}

// WritePrometheus writes all registered metrics in Prometheus text format.
func (m *Metrics) WritePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
}
