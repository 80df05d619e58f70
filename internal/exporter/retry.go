package exporter

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/spire-labs/telemetry/internal/event"
	"github.com/spire-labs/telemetry/internal/logging"
)

// ErrCircuitOpen indicates an attempt was rejected by the circuit breaker
// without reaching the network.
var ErrCircuitOpen = errors.New("circuit breaker open")

// RetryConfig controls the per-batch retry schedule.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts per batch, including the
	// first. Defaults to 5.
	MaxAttempts int
	// BaseBackoff is the delay before the first retry. Defaults to 500ms.
	BaseBackoff time.Duration
	// MaxBackoff caps the exponential delay. Defaults to 30s.
	MaxBackoff time.Duration
}

func (c *RetryConfig) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
}

// RetrySender wraps an Exporter with exponential backoff, jitter, and a
// circuit breaker. A breaker rejection consumes a retry attempt, so a batch
// facing a dead collector exhausts its budget and is dropped instead of
// retrying forever.
type RetrySender struct {
	exporter Exporter
	breaker  *CircuitBreaker
	cfg      RetryConfig

	// Injectable for tests.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(d time.Duration) time.Duration
}

// NewRetrySender creates a RetrySender. The breaker may be nil to disable
// circuit breaking.
func NewRetrySender(exp Exporter, breaker *CircuitBreaker, cfg RetryConfig) *RetrySender {
	cfg.applyDefaults()
	return &RetrySender{
		exporter: exp,
		breaker:  breaker,
		cfg:      cfg,
		sleep:    sleepContext,
		jitter:   defaultJitter,
	}
}

// Send exports the batch, retrying retryable failures with exponential
// backoff. It returns nil as soon as one attempt succeeds, the first
// permanent error immediately, the context error if the context ends while
// waiting, and the last error once the attempt budget is exhausted.
func (s *RetrySender) Send(ctx context.Context, reqs event.Requests) error {
	start := time.Now()
	defer func() {
		exportDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	var lastErr error
	attempted := false
	for attempt := 0; attempt < s.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			exportRetriesTotal.Inc()
			if err := s.sleep(ctx, s.backoff(attempt-1)); err != nil {
				return err
			}
		}

		if s.breaker != nil && !s.breaker.AllowRequest() {
			lastErr = ErrCircuitOpen
			continue
		}

		err := s.exporter.Export(ctx, reqs)
		attempted = true
		if err == nil {
			if s.breaker != nil {
				s.breaker.RecordSuccess()
			}
			return nil
		}
		lastErr = err

		var ee *ExportError
		if errors.As(err, &ee) && !ee.Retryable() {
			s.recordBatchFailure(attempted)
			logging.Warn("dropping batch after permanent export error", logging.F(
				"error", err.Error(),
				"error_type", string(ee.Type),
			))
			return err
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}

	s.recordBatchFailure(attempted)
	return fmt.Errorf("export failed after %d attempts: %w", s.cfg.MaxAttempts, lastErr)
}

// recordBatchFailure feeds the breaker once per fully-failed batch. The
// breaker counts batches, not attempts: a single batch exhausting its whole
// retry budget is one failure toward the threshold. Batches whose every
// attempt was rejected by an open breaker never reached the collector and
// carry no new signal, so they are not counted.
func (s *RetrySender) recordBatchFailure(attempted bool) {
	if s.breaker != nil && attempted {
		s.breaker.RecordFailure()
	}
}

// backoff returns base * 2^attempt plus jitter, capped at MaxBackoff.
func (s *RetrySender) backoff(attempt int) time.Duration {
	d := s.cfg.BaseBackoff
	for i := 0; i < attempt && d < s.cfg.MaxBackoff; i++ {
		d *= 2
	}
	d += s.jitter(d)
	if d > s.cfg.MaxBackoff {
		d = s.cfg.MaxBackoff
	}
	return d
}

// defaultJitter returns a random duration in [0, d/2).
func defaultJitter(d time.Duration) time.Duration {
	if d <= 1 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(d / 2)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
