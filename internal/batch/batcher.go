package batch

import (
	"time"

	"github.com/spire-labs/telemetry/internal/event"
)

// Batcher accumulates events into batches bounded by count and age.
//
// It alternates between two phases: accumulating (Add) and flushing
// (Take). A batch becomes due when it reaches MaxSize, when the oldest
// event in it has been held for MaxAge, or when the owner forces a flush.
// Age is measured with the monotonic clock reading embedded in the first
// event's arrival, so wall-clock adjustments cannot distort batch timing.
//
// Batcher is used by the single pipeline consumer goroutine and performs
// no locking. Take transfers ownership of the returned slice completely;
// the Batcher never re-reads a taken batch.
type Batcher struct {
	maxSize int
	maxAge  time.Duration

	events  []event.Event
	started time.Time
}

// New creates a batcher. maxSize must be positive; maxAge <= 0 disables
// age-based flushing.
func New(maxSize int, maxAge time.Duration) *Batcher {
	return &Batcher{
		maxSize: maxSize,
		maxAge:  maxAge,
		events:  make([]event.Event, 0, maxSize),
	}
}

// Add appends an event to the current batch and reports whether the
// batch is now size-complete.
func (b *Batcher) Add(ev event.Event) bool {
	if len(b.events) == 0 {
		b.started = time.Now()
	}
	b.events = append(b.events, ev)
	return len(b.events) >= b.maxSize
}

// Len returns the number of accumulated events.
func (b *Batcher) Len() int {
	return len(b.events)
}

// Due reports whether the current batch should flush at the given time,
// by size or by age. An empty batch is never due: a timer tick with no
// events produces no export call.
func (b *Batcher) Due(now time.Time) bool {
	if len(b.events) == 0 {
		return false
	}
	if len(b.events) >= b.maxSize {
		return true
	}
	return b.maxAge > 0 && now.Sub(b.started) >= b.maxAge
}

// WaitBudget returns how long the consumer may wait for more events
// before the current batch ages out. With an empty batch (nothing aging)
// or age-based flushing disabled, the full MaxAge is available.
func (b *Batcher) WaitBudget(now time.Time) time.Duration {
	if b.maxAge <= 0 {
		return time.Second
	}
	if len(b.events) == 0 {
		return b.maxAge
	}
	remaining := b.maxAge - now.Sub(b.started)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Take hands off the accumulated batch and resets to a fresh empty one.
// Returns nil when nothing has accumulated.
func (b *Batcher) Take() []event.Event {
	if len(b.events) == 0 {
		return nil
	}
	out := b.events
	b.events = make([]event.Event, 0, b.maxSize)
	return out
}
