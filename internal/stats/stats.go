package stats

import (
	"context"
	"sync"
	"time"

	"github.com/axiomhq/hyperloglog"
	"github.com/bits-and-blooms/bloom/v3"

	"github.com/spire-labs/telemetry/internal/event"
	"github.com/spire-labs/telemetry/internal/logging"
)

// Collector tracks lightweight statistics over the event stream: counts
// per kind, an estimate of unique traces, and the set of metric names
// seen so far. It plugs into the pipeline as an observer and adds no I/O
// to the hot path.
//
// Unique traces use a HyperLogLog sketch (~12KB fixed regardless of
// cardinality). Metric name first-sightings use a Bloom filter with a
// manual counter, so the distinct-name count may slightly undercount at
// the configured false positive rate.
type Collector struct {
	mu sync.Mutex

	cfg    Config
	byKind map[event.Kind]uint64

	traces      *hyperloglog.Sketch
	metricNames *bloom.BloomFilter
	nameCount   int64
}

// Config sizes the metric name filter.
type Config struct {
	// ExpectedMetricNames sizes the Bloom filter. Defaults to 10000.
	ExpectedMetricNames uint
	// FalsePositiveRate for the name filter. Defaults to 0.01.
	FalsePositiveRate float64
}

// NewCollector creates a stats collector.
func NewCollector(cfg Config) *Collector {
	if cfg.ExpectedMetricNames == 0 {
		cfg.ExpectedMetricNames = 10000
	}
	if cfg.FalsePositiveRate <= 0 {
		cfg.FalsePositiveRate = 0.01
	}
	return &Collector{
		cfg:         cfg,
		byKind:      make(map[event.Kind]uint64),
		traces:      hyperloglog.New(),
		metricNames: bloom.NewWithEstimates(cfg.ExpectedMetricNames, cfg.FalsePositiveRate),
	}
}

// Observe records one event. Safe for concurrent use.
func (c *Collector) Observe(ev event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.byKind[ev.Kind]++

	if ev.Correlated() {
		tid := ev.TraceID
		c.traces.Insert(tid[:])
	}

	if ev.Kind == event.KindMetric && ev.Name != "" {
		key := []byte(ev.Name)
		if !c.metricNames.Test(key) {
			c.metricNames.Add(key)
			c.nameCount++
		}
	}
}

// Stats is a point-in-time summary.
type Stats struct {
	// ByKind holds event counts per kind.
	ByKind map[event.Kind]uint64
	// UniqueTraces is the estimated number of distinct trace IDs seen.
	UniqueTraces uint64
	// MetricNames is the approximate number of distinct metric names seen.
	MetricNames int64
}

// Snapshot returns current statistics.
func (c *Collector) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	byKind := make(map[event.Kind]uint64, len(c.byKind))
	for k, v := range c.byKind {
		byKind[k] = v
	}
	return Stats{
		ByKind:       byKind,
		UniqueTraces: c.traces.Estimate(),
		MetricNames:  c.nameCount,
	}
}

// Reset clears the probabilistic trackers for a new window. Kind counters
// are cumulative and survive resets.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.traces = hyperloglog.New()
	c.metricNames = bloom.NewWithEstimates(c.cfg.ExpectedMetricNames, c.cfg.FalsePositiveRate)
	c.nameCount = 0
}

// StartPeriodicLogging logs a stats summary every interval until the
// context ends. The probabilistic trackers are reset hourly to keep the
// Bloom filter's false positive rate bounded on long-running processes.
func (c *Collector) StartPeriodicLogging(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	resetTicker := time.NewTicker(time.Hour)
	defer resetTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := c.Snapshot()
			logging.Info("telemetry stats", logging.F(
				"logs", s.ByKind[event.KindLog],
				"spans", s.ByKind[event.KindSpanEnd],
				"metrics", s.ByKind[event.KindMetric],
				"unique_traces", s.UniqueTraces,
				"metric_names", s.MetricNames,
			))
		case <-resetTicker.C:
			c.Reset()
		}
	}
}
