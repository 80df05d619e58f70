package exporter

import (
	"context"
)

// ConcurrencyLimiter is a channel-based semaphore bounding the number of
// in-flight exports. The consumer blocks on Acquire before dispatching a
// batch, so export slowness turns into queue backpressure instead of
// unbounded goroutine growth.
type ConcurrencyLimiter struct {
	sem chan struct{}
}

// NewConcurrencyLimiter creates a limiter allowing at most limit concurrent
// exports. A limit <= 0 defaults to 4.
func NewConcurrencyLimiter(limit int) *ConcurrencyLimiter {
	if limit <= 0 {
		limit = 4
	}
	return &ConcurrencyLimiter{
		sem: make(chan struct{}, limit),
	}
}

// Acquire blocks until a slot is available.
func (l *ConcurrencyLimiter) Acquire() {
	l.sem <- struct{}{}
	inFlightExports.Set(float64(len(l.sem)))
}

// Release returns a slot. Must be called after Acquire completes its work.
func (l *ConcurrencyLimiter) Release() {
	<-l.sem
	inFlightExports.Set(float64(len(l.sem)))
}

// TryAcquire attempts to acquire a slot without blocking.
func (l *ConcurrencyLimiter) TryAcquire() bool {
	select {
	case l.sem <- struct{}{}:
		inFlightExports.Set(float64(len(l.sem)))
		return true
	default:
		return false
	}
}

// AcquireContext blocks until a slot is available or the context is canceled.
func (l *ConcurrencyLimiter) AcquireContext(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		inFlightExports.Set(float64(len(l.sem)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Limit returns the maximum number of concurrent exports allowed.
func (l *ConcurrencyLimiter) Limit() int {
	return cap(l.sem)
}

// InUse returns the number of slots currently in use. This is a snapshot and
// may change immediately after the call.
func (l *ConcurrencyLimiter) InUse() int {
	return len(l.sem)
}
