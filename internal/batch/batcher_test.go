package batch

import (
	"testing"
	"time"

	"github.com/spire-labs/telemetry/internal/event"
)

func ev() event.Event {
	return event.NewLog(event.SeverityInfo, "x")
}

func TestSizeTrigger(t *testing.T) {
	b := New(3, time.Hour)

	if b.Add(ev()) {
		t.Error("batch reported full after 1 of 3 events")
	}
	if b.Add(ev()) {
		t.Error("batch reported full after 2 of 3 events")
	}
	if !b.Add(ev()) {
		t.Error("batch not reported full after 3 of 3 events")
	}
	if !b.Due(time.Now()) {
		t.Error("size-complete batch not due")
	}
}

func TestSizeBatching(t *testing.T) {
	// 25 events through a size-10 batcher yield batches of 10, 10, 5.
	b := New(10, 0)

	var sizes []int
	for i := 0; i < 25; i++ {
		if b.Add(ev()) {
			sizes = append(sizes, len(b.Take()))
		}
	}
	if rest := b.Take(); rest != nil {
		sizes = append(sizes, len(rest))
	}

	if len(sizes) != 3 || sizes[0] != 10 || sizes[1] != 10 || sizes[2] != 5 {
		t.Errorf("batch sizes = %v, want [10 10 5]", sizes)
	}
}

func TestAgeTrigger(t *testing.T) {
	b := New(100, 50*time.Millisecond)
	b.Add(ev())

	if b.Due(time.Now()) {
		t.Error("fresh batch already due")
	}
	if !b.Due(time.Now().Add(60 * time.Millisecond)) {
		t.Error("aged batch not due")
	}
}

func TestEmptyBatchNeverDue(t *testing.T) {
	b := New(10, time.Millisecond)
	if b.Due(time.Now().Add(time.Hour)) {
		t.Error("empty batch reported due on timer tick")
	}
	if b.Take() != nil {
		t.Error("Take on empty batch should return nil")
	}
}

func TestTakeResets(t *testing.T) {
	b := New(10, time.Hour)
	for i := 0; i < 4; i++ {
		b.Add(ev())
	}

	batch := b.Take()
	if len(batch) != 4 {
		t.Fatalf("took %d events, want 4", len(batch))
	}
	if b.Len() != 0 {
		t.Errorf("Len() = %d after Take, want 0", b.Len())
	}

	// The taken slice is fully owned by the caller: further accumulation
	// must not alias into it.
	b.Add(ev())
	if len(batch) != 4 {
		t.Error("taken batch mutated by later Add")
	}
}

func TestAgeWindowRestartsPerBatch(t *testing.T) {
	b := New(100, 50*time.Millisecond)
	b.Add(ev())
	time.Sleep(10 * time.Millisecond)
	b.Take()

	// New batch's age window starts with its own first event.
	b.Add(ev())
	if b.Due(time.Now().Add(45 * time.Millisecond)) {
		t.Error("new batch inherited previous batch's age")
	}
}

func TestWaitBudget(t *testing.T) {
	b := New(100, 100*time.Millisecond)

	if got := b.WaitBudget(time.Now()); got != 100*time.Millisecond {
		t.Errorf("empty batch WaitBudget = %v, want full max age", got)
	}

	b.Add(ev())
	budget := b.WaitBudget(time.Now())
	if budget <= 0 || budget > 100*time.Millisecond {
		t.Errorf("WaitBudget = %v, want (0, 100ms]", budget)
	}

	if got := b.WaitBudget(time.Now().Add(time.Second)); got != 0 {
		t.Errorf("overdue batch WaitBudget = %v, want 0", got)
	}
}

func TestWaitBudgetAgeDisabled(t *testing.T) {
	b := New(100, 0)
	b.Add(ev())
	if got := b.WaitBudget(time.Now()); got <= 0 {
		t.Errorf("WaitBudget = %v with age disabled, want positive poll interval", got)
	}
}
