package exporter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spire-labs/telemetry/internal/event"
)

// fakeExporter fails the first failures calls, then succeeds.
type fakeExporter struct {
	failures int
	err      error
	calls    int
}

func (f *fakeExporter) Export(ctx context.Context, reqs event.Requests) error {
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	return nil
}

func (f *fakeExporter) Close() error { return nil }

// newTestSender wires a RetrySender with instant sleeps and zero jitter,
// recording every requested delay.
func newTestSender(exp Exporter, breaker *CircuitBreaker, cfg RetryConfig) (*RetrySender, *[]time.Duration) {
	s := NewRetrySender(exp, breaker, cfg)
	delays := &[]time.Duration{}
	s.sleep = func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
	s.jitter = func(time.Duration) time.Duration { return 0 }
	return s, delays
}

func retryableErr() error {
	return &ExportError{Err: errors.New("connection refused"), Type: ErrorTypeNetwork}
}

func permanentErr() error {
	return &ExportError{Err: errors.New("bad request"), Type: ErrorTypeRejected, StatusCode: 400}
}

func TestSendSucceedsFirstAttempt(t *testing.T) {
	exp := &fakeExporter{}
	s, delays := newTestSender(exp, nil, RetryConfig{})

	if err := s.Send(context.Background(), event.Requests{}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if exp.calls != 1 {
		t.Errorf("expected 1 attempt, got %d", exp.calls)
	}
	if len(*delays) != 0 {
		t.Errorf("expected no backoff sleeps, got %v", *delays)
	}
}

func TestSendRetriesThenSucceeds(t *testing.T) {
	exp := &fakeExporter{failures: 2, err: retryableErr()}
	s, delays := newTestSender(exp, nil, RetryConfig{
		MaxAttempts: 5,
		BaseBackoff: 100 * time.Millisecond,
		MaxBackoff:  30 * time.Second,
	})

	if err := s.Send(context.Background(), event.Requests{}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if exp.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", exp.calls)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(*delays) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), *delays)
	}
	for i, d := range want {
		if (*delays)[i] != d {
			t.Errorf("sleep %d: expected %v, got %v", i, d, (*delays)[i])
		}
	}
}

func TestSendBackoffDoublesAndCaps(t *testing.T) {
	exp := &fakeExporter{failures: 10, err: retryableErr()}
	s, delays := newTestSender(exp, nil, RetryConfig{
		MaxAttempts: 6,
		BaseBackoff: 1 * time.Second,
		MaxBackoff:  4 * time.Second,
	})

	if err := s.Send(context.Background(), event.Requests{}); err == nil {
		t.Fatal("expected send to fail")
	}
	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second, 4 * time.Second}
	if len(*delays) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), *delays)
	}
	for i, d := range want {
		if (*delays)[i] != d {
			t.Errorf("sleep %d: expected %v, got %v", i, d, (*delays)[i])
		}
	}
}

func TestSendJitterCappedAtMax(t *testing.T) {
	exp := &fakeExporter{failures: 1, err: retryableErr()}
	s, delays := newTestSender(exp, nil, RetryConfig{
		MaxAttempts: 2,
		BaseBackoff: 3 * time.Second,
		MaxBackoff:  4 * time.Second,
	})
	s.jitter = func(d time.Duration) time.Duration { return 2 * time.Second }

	if err := s.Send(context.Background(), event.Requests{}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if len(*delays) != 1 || (*delays)[0] != 4*time.Second {
		t.Errorf("expected jittered delay capped at 4s, got %v", *delays)
	}
}

func TestSendPermanentErrorAborts(t *testing.T) {
	exp := &fakeExporter{failures: 10, err: permanentErr()}
	s, delays := newTestSender(exp, nil, RetryConfig{MaxAttempts: 5})

	err := s.Send(context.Background(), event.Requests{})
	if err == nil {
		t.Fatal("expected send to fail")
	}
	var ee *ExportError
	if !errors.As(err, &ee) || ee.Type != ErrorTypeRejected {
		t.Errorf("expected rejected error, got %v", err)
	}
	if exp.calls != 1 {
		t.Errorf("expected 1 attempt for permanent error, got %d", exp.calls)
	}
	if len(*delays) != 0 {
		t.Errorf("expected no sleeps, got %v", *delays)
	}
}

func TestSendExhaustsBudget(t *testing.T) {
	exp := &fakeExporter{failures: 10, err: retryableErr()}
	s, _ := newTestSender(exp, nil, RetryConfig{MaxAttempts: 3, BaseBackoff: time.Millisecond})

	err := s.Send(context.Background(), event.Requests{})
	if err == nil {
		t.Fatal("expected send to fail")
	}
	if exp.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", exp.calls)
	}
	var ee *ExportError
	if !errors.As(err, &ee) || ee.Type != ErrorTypeNetwork {
		t.Errorf("expected wrapped network error, got %v", err)
	}
}

func TestSendContextCanceledDuringBackoff(t *testing.T) {
	exp := &fakeExporter{failures: 10, err: retryableErr()}
	s := NewRetrySender(exp, nil, RetryConfig{MaxAttempts: 5, BaseBackoff: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	s.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	err := s.Send(ctx, event.Requests{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if exp.calls != 1 {
		t.Errorf("expected 1 attempt before cancellation, got %d", exp.calls)
	}
}

func TestSendBreakerCountsBatchesNotAttempts(t *testing.T) {
	breaker := NewCircuitBreaker(5, time.Hour)
	exp := &fakeExporter{failures: 1 << 30, err: retryableErr()}
	s, _ := newTestSender(exp, breaker, RetryConfig{MaxAttempts: 5, BaseBackoff: time.Millisecond})

	// One batch exhausting its whole retry budget is a single failure
	// toward the threshold.
	if err := s.Send(context.Background(), event.Requests{}); err == nil {
		t.Fatal("expected send to fail")
	}
	if exp.calls != 5 {
		t.Fatalf("expected 5 attempts, got %d", exp.calls)
	}
	if breaker.State() != CircuitClosed {
		t.Fatalf("breaker opened after one failed batch, state %v", breaker.State())
	}
	if got := breaker.ConsecutiveFailures(); got != 1 {
		t.Fatalf("consecutive failures = %d after one batch, want 1", got)
	}

	for i := 0; i < 3; i++ {
		s.Send(context.Background(), event.Requests{})
	}
	if breaker.State() != CircuitClosed {
		t.Fatalf("breaker opened after four failed batches, state %v", breaker.State())
	}

	if err := s.Send(context.Background(), event.Requests{}); err == nil {
		t.Fatal("expected send to fail")
	}
	if breaker.State() != CircuitOpen {
		t.Errorf("expected circuit open after five failed batches, got %v", breaker.State())
	}
}

func TestSendBreakerSuccessResetsBatchCount(t *testing.T) {
	breaker := NewCircuitBreaker(2, time.Hour)
	exp := &fakeExporter{failures: 5, err: retryableErr()}
	s, _ := newTestSender(exp, breaker, RetryConfig{MaxAttempts: 5, BaseBackoff: time.Millisecond})

	// First batch burns the five failing calls and counts once.
	if err := s.Send(context.Background(), event.Requests{}); err == nil {
		t.Fatal("expected send to fail")
	}
	if got := breaker.ConsecutiveFailures(); got != 1 {
		t.Fatalf("consecutive failures = %d, want 1", got)
	}

	// Second batch succeeds immediately and clears the count.
	if err := s.Send(context.Background(), event.Requests{}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if got := breaker.ConsecutiveFailures(); got != 0 {
		t.Errorf("consecutive failures = %d after delivery, want 0", got)
	}
	if breaker.State() != CircuitClosed {
		t.Errorf("expected circuit closed, got %v", breaker.State())
	}
}

func TestSendBreakerRejectionsConsumeBudget(t *testing.T) {
	breaker := NewCircuitBreaker(1, time.Hour)
	breaker.RecordFailure() // force open, cooldown far away

	exp := &fakeExporter{}
	s, _ := newTestSender(exp, breaker, RetryConfig{MaxAttempts: 3, BaseBackoff: time.Millisecond})

	err := s.Send(context.Background(), event.Requests{})
	if err == nil {
		t.Fatal("expected send to fail while circuit is open")
	}
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if exp.calls != 0 {
		t.Errorf("expected no network attempts through open circuit, got %d", exp.calls)
	}
}

func TestSendBreakerRecovery(t *testing.T) {
	breaker := NewCircuitBreaker(1, 0)
	breaker.RecordFailure() // open, but cooldown 0 allows an immediate probe

	exp := &fakeExporter{}
	s, _ := newTestSender(exp, breaker, RetryConfig{MaxAttempts: 3, BaseBackoff: time.Millisecond})

	if err := s.Send(context.Background(), event.Requests{}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if breaker.State() != CircuitClosed {
		t.Errorf("expected circuit closed after successful probe, got %v", breaker.State())
	}
}

func TestDefaultJitterBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		j := defaultJitter(time.Second)
		if j < 0 || j >= 500*time.Millisecond {
			t.Fatalf("jitter %v out of [0, 500ms)", j)
		}
	}
	if defaultJitter(0) != 0 {
		t.Error("expected zero jitter for zero delay")
	}
}
