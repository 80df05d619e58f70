package queue

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spire-labs/telemetry/internal/event"
)

// Policy defines what happens when the queue is full.
type Policy string

const (
	// Block suspends the producer until space frees or BlockTimeout elapses.
	Block Policy = "block"
	// DropOldest evicts the oldest buffered event to admit the new one.
	DropOldest Policy = "drop_oldest"
	// DropNewest discards the incoming event; enqueue still reports success
	// so telemetry loss never surfaces as a request failure.
	DropNewest Policy = "drop_newest"
)

// ParsePolicy validates a policy string from configuration.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case Block, DropOldest, DropNewest:
		return Policy(s), nil
	case "":
		return DropNewest, nil
	default:
		return "", fmt.Errorf("unknown backpressure policy %q", s)
	}
}

// ErrQueueFull is returned to a producer only under the Block policy, after
// the bounded wait timed out.
var ErrQueueFull = errors.New("telemetry queue full")

// ErrClosed is returned once the queue has been closed for enqueue.
var ErrClosed = errors.New("telemetry queue closed")

// Config holds queue construction parameters.
type Config struct {
	// Capacity is the fixed maximum number of buffered events.
	Capacity int
	// FullPolicy selects the backpressure behavior when full.
	FullPolicy Policy
	// BlockTimeout bounds the producer wait under the Block policy.
	BlockTimeout time.Duration
}

// Queue is a fixed-capacity multi-producer single-consumer event buffer.
//
// It decouples event production (arbitrary application goroutines) from
// export (one background consumer). The buffer is a Go channel, which
// gives FIFO ordering per producer and bounded occupancy for free; all
// policy logic lives around the channel operations. Enqueue never performs
// I/O and, outside the Block policy, returns without suspending.
type Queue struct {
	ch       chan event.Event
	done     chan struct{}
	policy   Policy
	blockFor time.Duration
	closed   atomic.Bool

	enqueued      atomic.Uint64
	dequeued      atomic.Uint64
	droppedOldest atomic.Uint64
	droppedNewest atomic.Uint64
	blocked       atomic.Uint64
}

// New creates a queue with the given configuration.
func New(cfg Config) (*Queue, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("queue capacity must be positive, got %d", cfg.Capacity)
	}
	policy, err := ParsePolicy(string(cfg.FullPolicy))
	if err != nil {
		return nil, err
	}
	blockFor := cfg.BlockTimeout
	if blockFor <= 0 {
		blockFor = 5 * time.Second
	}
	queueCapacity.Set(float64(cfg.Capacity))
	return &Queue{
		ch:       make(chan event.Event, cfg.Capacity),
		done:     make(chan struct{}),
		policy:   policy,
		blockFor: blockFor,
	}, nil
}

// Enqueue admits an event under the configured backpressure policy.
// Safe for concurrent use by any number of producers.
func (q *Queue) Enqueue(ev event.Event) error {
	if q.closed.Load() {
		return ErrClosed
	}

	// Fast path: space available.
	select {
	case q.ch <- ev:
		q.recordEnqueue()
		return nil
	default:
	}

	switch q.policy {
	case DropNewest:
		q.droppedNewest.Add(1)
		droppedNewestTotal.Inc()
		return nil

	case DropOldest:
		for {
			// Evict the head to make room, then retry. Another producer
			// may win the freed slot, so loop until our event is in.
			select {
			case <-q.ch:
				q.droppedOldest.Add(1)
				droppedOldestTotal.Inc()
			default:
			}
			select {
			case q.ch <- ev:
				q.recordEnqueue()
				return nil
			default:
			}
		}

	default: // Block
		q.blocked.Add(1)
		enqueueBlockedTotal.Inc()
		timer := time.NewTimer(q.blockFor)
		defer timer.Stop()
		select {
		case q.ch <- ev:
			q.recordEnqueue()
			return nil
		case <-timer.C:
			return ErrQueueFull
		case <-q.done:
			return ErrClosed
		}
	}
}

func (q *Queue) recordEnqueue() {
	q.enqueued.Add(1)
	queueDepth.Set(float64(len(q.ch)))
}

// DequeueBatch returns up to max buffered events, preserving queue order.
// If the queue is empty it suspends cooperatively until an event arrives
// or wait elapses, returning nil on timeout. Called by exactly one
// consumer goroutine.
func (q *Queue) DequeueBatch(max int, wait time.Duration) []event.Event {
	if max <= 0 {
		return nil
	}

	out := q.drain(nil, max)
	if len(out) > 0 {
		return out
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case ev := <-q.ch:
		q.dequeued.Add(1)
		out = append(out, ev)
	case <-timer.C:
		return nil
	case <-q.done:
		// Closed: hand back whatever arrived before the close.
		return q.drain(nil, max)
	}

	// Pull whatever else is immediately available into the same batch.
	out = q.drain(out, max)
	queueDepth.Set(float64(len(q.ch)))
	return out
}

func (q *Queue) drain(out []event.Event, max int) []event.Event {
	for len(out) < max {
		select {
		case ev := <-q.ch:
			q.dequeued.Add(1)
			out = append(out, ev)
		default:
			queueDepth.Set(float64(len(q.ch)))
			return out
		}
	}
	queueDepth.Set(float64(len(q.ch)))
	return out
}

// Close stops admission. Buffered events remain readable via DequeueBatch
// so the shutdown path can flush them.
func (q *Queue) Close() {
	if q.closed.CompareAndSwap(false, true) {
		close(q.done)
	}
}

// Closed reports whether admission has stopped.
func (q *Queue) Closed() bool {
	return q.closed.Load()
}

// Len returns the current occupancy.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Capacity returns the fixed capacity.
func (q *Queue) Capacity() int {
	return cap(q.ch)
}

// Stats is a read-only snapshot of queue state.
type Stats struct {
	Depth         int
	Capacity      int
	Enqueued      uint64
	Dequeued      uint64
	DroppedOldest uint64
	DroppedNewest uint64
	Blocked       uint64
}

// Snapshot returns current queue counters. Counters are monotonically
// non-decreasing within a process lifetime.
func (q *Queue) Snapshot() Stats {
	return Stats{
		Depth:         len(q.ch),
		Capacity:      cap(q.ch),
		Enqueued:      q.enqueued.Load(),
		Dequeued:      q.dequeued.Load(),
		DroppedOldest: q.droppedOldest.Load(),
		DroppedNewest: q.droppedNewest.Load(),
		Blocked:       q.blocked.Load(),
	}
}
