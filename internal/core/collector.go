// Licensed under the MIT License. See LICENSE file in the project root for details.

package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/kianostad/ebr/internal/concurrency/epoch"
	"github.com/kianostad/ebr/internal/monitoring/metrics"
)

// DefaultCollectInterval is how often the optional background loop runs a
// collection cycle.
const DefaultCollectInterval = 100 * time.Millisecond

// Collector owns an epoch coordinator and its metrics. It is the process
// entry point of the engine: goroutines register participants through it,
// and it optionally runs a background collection loop that keeps the global
// fallback lists drained even when no participant pins for a while.
//
// The primary reclamation path is still opportunistic collection on pin; the
// background loop is a supplement, off until Start is called.
type Collector struct {
	coord    *epoch.Coordinator
	m        *metrics.Metrics
	interval time.Duration
	started  atomic.Bool
	stop     atomic.Bool
	wg       sync.WaitGroup
}

// Option configures a Collector.
type Option func(*collectorConfig)

type collectorConfig struct {
	threshold int
	interval  time.Duration
}

// WithGarbageThreshold sets the number of locally filed records above which
// a pin attempts to advance the global epoch.
func WithGarbageThreshold(n int) Option {
	return func(c *collectorConfig) { c.threshold = n }
}

// WithCollectInterval sets the background collection interval.
func WithCollectInterval(d time.Duration) Option {
	return func(c *collectorConfig) { c.interval = d }
}

// NewCollector creates a collector and registers its protocol gauges.
func NewCollector(opts ...Option) *Collector {
	cfg := collectorConfig{
		threshold: epoch.DefaultGarbageThreshold,
		interval:  DefaultCollectInterval,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Collector{
		coord:    epoch.NewCoordinatorWithThreshold(cfg.threshold),
		m:        metrics.New(),
		interval: cfg.interval,
	}

	coord := c.coord
	c.m.Gauge("ebr_global_epoch", func() float64 {
		return float64(coord.GlobalEpoch())
	})
	c.m.Gauge("ebr_participants", func() float64 {
		return float64(coord.Stats().Participants)
	})
	// Cumulative protocol counters are exposed without the _total suffix:
	// they are read back as callback gauges, and the suffix would promise a
	// Prometheus counter type.
	c.m.Gauge("ebr_pins", func() float64 {
		return float64(coord.Stats().Pins)
	})
	c.m.Gauge("ebr_epoch_advances", func() float64 {
		return float64(coord.Stats().Advances)
	})
	c.m.Gauge("ebr_unlinked", func() float64 {
		return float64(coord.Stats().Unlinked)
	})
	c.m.Gauge("ebr_freed", func() float64 {
		return float64(coord.Stats().Freed)
	})
	c.m.Gauge("ebr_fallback_bags", func() float64 {
		return float64(coord.Stats().FallbackBags)
	})
	return c
}

// Register adds a participant for the calling goroutine. Registration never
// fails. The participant must be deregistered when the goroutine stops
// participating.
func (c *Collector) Register() *epoch.Participant {
	return c.coord.Register()
}

// ForceCollect runs an immediate collection cycle: it registers a transient
// participant, pins, attempts an epoch advance and frees whatever became
// reclaimable, including orphaned fallback garbage.
func (c *Collector) ForceCollect() {
	start := time.Now()
	p := c.coord.Register()
	g := p.Pin()
	g.Flush()
	g.Unpin()
	p.Deregister()
	c.m.RecordCollection(time.Since(start))
}

// Start begins the background collection loop. Repeated calls are no-ops:
// at most one loop runs per collector, and a stopped collector stays
// stopped — Start after Stop does nothing.
func (c *Collector) Start() {
	if c.stop.Load() || !c.started.CompareAndSwap(false, true) {
		return
	}
	c.wg.Add(1)
	go c.run()
}

// Stop gracefully stops the background loop and waits for it to exit.
func (c *Collector) Stop() {
	c.stop.Store(true)
	c.wg.Wait()
}

// run is the background collection loop.
func (c *Collector) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for !c.stop.Load() {
		<-ticker.C
		c.ForceCollect()
	}
}

// Stats returns a snapshot of the coordinator's protocol counters.
func (c *Collector) Stats() epoch.Stats {
	return c.coord.Stats()
}

// Metrics returns the collector's metrics instance.
func (c *Collector) Metrics() *metrics.Metrics {
	return c.m
}
