package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spire-labs/telemetry/internal/batch"
	"github.com/spire-labs/telemetry/internal/event"
	"github.com/spire-labs/telemetry/internal/exporter"
	"github.com/spire-labs/telemetry/internal/logging"
	"github.com/spire-labs/telemetry/internal/queue"
)

// Sender delivers an encoded batch to the collector.
type Sender interface {
	Send(ctx context.Context, reqs event.Requests) error
}

// Observer receives a copy of every admitted event, for statistics.
type Observer interface {
	Observe(ev event.Event)
}

// Config holds pipeline construction parameters.
type Config struct {
	// Queue configures the bounded event buffer.
	Queue queue.Config
	// MaxBatchSize flushes a batch when it reaches this many events.
	// Defaults to 512.
	MaxBatchSize int
	// MaxBatchAge flushes a non-empty batch after this long regardless of
	// size. Defaults to 5s; <= 0 keeps the default (size-only batching is
	// configured with a very large value, not zero, so a trickle of events
	// cannot be held forever by accident).
	MaxBatchAge time.Duration
	// Retry configures per-batch retry behavior.
	Retry exporter.RetryConfig
	// MaxInFlightExports bounds concurrent export calls. Defaults to 4.
	MaxInFlightExports int
	// ShutdownDeadline bounds Shutdown when the caller's context carries no
	// deadline of its own. Defaults to 5s.
	ShutdownDeadline time.Duration
	// BreakerThreshold opens the circuit after this many consecutive
	// failures. Defaults to 5; < 0 disables the breaker.
	BreakerThreshold int
	// BreakerCooldown is the open-state wait before probing. Defaults to 30s.
	BreakerCooldown time.Duration
	// Observer, when set, sees every admitted event.
	Observer Observer
}

func (c *Config) applyDefaults() {
	if c.Queue.Capacity <= 0 {
		c.Queue.Capacity = 2048
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 512
	}
	if c.MaxBatchAge <= 0 {
		c.MaxBatchAge = 5 * time.Second
	}
	if c.MaxInFlightExports <= 0 {
		c.MaxInFlightExports = 4
	}
	if c.ShutdownDeadline <= 0 {
		c.ShutdownDeadline = 5 * time.Second
	}
	if c.BreakerThreshold == 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 30 * time.Second
	}
}

// Report summarizes delivery at the end of a pipeline's life.
type Report struct {
	// ExportedEvents is the number of events delivered to the collector.
	ExportedEvents uint64
	// ExportedBatches is the number of successful batch exports.
	ExportedBatches uint64
	// FailedBatches is the number of batches dropped after exhausting
	// their retry budget during normal operation.
	FailedBatches uint64
	// LostOnShutdown is the number of events abandoned because the
	// shutdown deadline arrived first.
	LostOnShutdown uint64
	// DroppedOldest and DroppedNewest are queue admission drops.
	DroppedOldest uint64
	DroppedNewest uint64
	// Elapsed is how long Shutdown took.
	Elapsed time.Duration
}

// Snapshot is a point-in-time view of pipeline health.
type Snapshot struct {
	Queue           queue.Stats
	ExportedEvents  uint64
	ExportedBatches uint64
	FailedBatches   uint64
	LostOnShutdown  uint64
}

// Pipeline moves events from producers to the collector: a bounded queue
// absorbs bursts, a single consumer goroutine forms batches by size and
// age, and up to MaxInFlightExports goroutines export them with retries.
type Pipeline struct {
	cfg     Config
	q       *queue.Queue
	enc     *event.Encoder
	sender  Sender
	exp     exporter.Exporter
	limiter *exporter.ConcurrencyLimiter

	runCtx       context.Context
	runCancel    context.CancelFunc
	consumerDone chan struct{}
	exportWG     sync.WaitGroup

	shuttingDown atomic.Bool
	report       Report
	reportOnce   sync.Once

	exportedEvents  atomic.Uint64
	exportedBatches atomic.Uint64
	failedBatches   atomic.Uint64
	lostOnShutdown  atomic.Uint64
}

// New creates a pipeline and starts its consumer goroutine. The exporter is
// owned by the pipeline and closed during Shutdown.
func New(cfg Config, enc *event.Encoder, exp exporter.Exporter) (*Pipeline, error) {
	cfg.applyDefaults()

	var breaker *exporter.CircuitBreaker
	if cfg.BreakerThreshold > 0 {
		breaker = exporter.NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown)
	}
	return newWithSender(cfg, enc, exp, exporter.NewRetrySender(exp, breaker, cfg.Retry))
}

// newWithSender wires the pipeline around an explicit Sender.
func newWithSender(cfg Config, enc *event.Encoder, exp exporter.Exporter, sender Sender) (*Pipeline, error) {
	cfg.applyDefaults()
	q, err := queue.New(cfg.Queue)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		cfg:          cfg,
		q:            q,
		enc:          enc,
		sender:       sender,
		exp:          exp,
		limiter:      exporter.NewConcurrencyLimiter(cfg.MaxInFlightExports),
		runCtx:       ctx,
		runCancel:    cancel,
		consumerDone: make(chan struct{}),
	}

	go p.run()

	logging.Info("telemetry pipeline started", logging.F(
		"queue_capacity", cfg.Queue.Capacity,
		"full_policy", string(cfg.Queue.FullPolicy),
		"max_batch_size", cfg.MaxBatchSize,
		"max_batch_age", cfg.MaxBatchAge.String(),
		"max_in_flight_exports", cfg.MaxInFlightExports,
	))
	return p, nil
}

// Record admits an event into the pipeline. It never performs I/O; under
// the Block policy it may wait up to the queue's block timeout for space.
// After Shutdown has begun it returns queue.ErrClosed.
func (p *Pipeline) Record(ev event.Event) error {
	if err := p.q.Enqueue(ev); err != nil {
		return err
	}
	eventsReceivedTotal.WithLabelValues(ev.Kind.String()).Inc()
	if p.cfg.Observer != nil {
		p.cfg.Observer.Observe(ev)
	}
	return nil
}

// run is the single consumer goroutine: it drains the queue into the
// batcher and hands completed batches to flush.
func (p *Pipeline) run() {
	defer close(p.consumerDone)

	b := batch.New(p.cfg.MaxBatchSize, p.cfg.MaxBatchAge)
	for {
		now := time.Now()
		if b.Due(now) {
			p.flush(b.Take())
		}

		events := p.q.DequeueBatch(p.cfg.MaxBatchSize-b.Len(), b.WaitBudget(now))
		for _, ev := range events {
			if b.Add(ev) {
				p.flush(b.Take())
			}
		}

		if len(events) == 0 && p.q.Closed() && p.q.Len() == 0 {
			p.flush(b.Take())
			return
		}
	}
}

// flush exports a completed batch on its own goroutine, bounded by the
// concurrency limiter. Acquiring a slot blocks the consumer, which turns
// sustained export slowness into queue backpressure.
func (p *Pipeline) flush(events []event.Event) {
	if len(events) == 0 {
		return
	}
	if err := p.limiter.AcquireContext(p.runCtx); err != nil {
		p.lose(len(events), err)
		return
	}

	p.exportWG.Add(1)
	go func() {
		defer p.exportWG.Done()
		defer p.limiter.Release()

		err := p.sender.Send(p.runCtx, p.enc.Encode(events))
		if err == nil {
			p.exportedEvents.Add(uint64(len(events)))
			p.exportedBatches.Add(1)
			exportedEventsTotal.Add(float64(len(events)))
			exportedBatchesTotal.Inc()
			batchSizeEvents.Observe(float64(len(events)))
			return
		}

		if p.shuttingDown.Load() {
			p.lose(len(events), err)
			return
		}
		p.failedBatches.Add(1)
		exportFailedBatchesTotal.Inc()
		logging.Warn("dropping batch after failed export", logging.F(
			"events", len(events),
			"error", err.Error(),
		))
	}()
}

// lose accounts for events abandoned during shutdown.
func (p *Pipeline) lose(n int, err error) {
	p.lostOnShutdown.Add(uint64(n))
	lostOnShutdownTotal.Add(float64(n))
	logging.Warn("abandoning batch at shutdown", logging.F(
		"events", n,
		"error", err.Error(),
	))
}

// Snapshot returns current pipeline counters.
func (p *Pipeline) Snapshot() Snapshot {
	return Snapshot{
		Queue:           p.q.Snapshot(),
		ExportedEvents:  p.exportedEvents.Load(),
		ExportedBatches: p.exportedBatches.Load(),
		FailedBatches:   p.failedBatches.Load(),
		LostOnShutdown:  p.lostOnShutdown.Load(),
	}
}

// Shutdown stops admission, flushes what it can, and returns a delivery
// report. It returns within the context deadline plus a small cleanup
// margin; when the caller's context has no deadline, ShutdownDeadline
// applies. In-flight exports still running at the deadline are canceled
// and their events counted as lost. Subsequent calls return the first
// call's report.
func (p *Pipeline) Shutdown(ctx context.Context) Report {
	p.reportOnce.Do(func() {
		start := time.Now()
		p.shuttingDown.Store(true)
		p.q.Close()

		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, p.cfg.ShutdownDeadline)
			defer cancel()
		}

		done := make(chan struct{})
		go func() {
			<-p.consumerDone
			p.exportWG.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			// Deadline first: hard-cancel in-flight exports. They return
			// promptly with a context error and are counted as lost.
			p.runCancel()
			<-done
		}
		p.runCancel()

		if err := p.exp.Close(); err != nil {
			logging.Warn("exporter close failed", logging.F("error", err.Error()))
		}

		qs := p.q.Snapshot()
		p.report = Report{
			ExportedEvents:  p.exportedEvents.Load(),
			ExportedBatches: p.exportedBatches.Load(),
			FailedBatches:   p.failedBatches.Load(),
			LostOnShutdown:  p.lostOnShutdown.Load(),
			DroppedOldest:   qs.DroppedOldest,
			DroppedNewest:   qs.DroppedNewest,
			Elapsed:         time.Since(start),
		}

		logging.Info("telemetry pipeline stopped", logging.F(
			"exported_events", p.report.ExportedEvents,
			"exported_batches", p.report.ExportedBatches,
			"failed_batches", p.report.FailedBatches,
			"lost_on_shutdown", p.report.LostOnShutdown,
			"elapsed", p.report.Elapsed.String(),
		))
	})
	return p.report
}
