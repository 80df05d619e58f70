package event

import (
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindLog, "log"},
		{KindSpanStart, "span_start"},
		{KindSpanEnd, "span_end"},
		{KindMetric, "metric"},
		{Kind(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestSeverityText(t *testing.T) {
	tests := []struct {
		severity int32
		want     string
	}{
		{SeverityDebug, "DEBUG"},
		{SeverityInfo, "INFO"},
		{SeverityWarn, "WARN"},
		{SeverityError, "ERROR"},
		{SeverityFatal, "FATAL"},
		{10, "INFO"},
		{1, "TRACE"},
	}
	for _, tt := range tests {
		if got := SeverityText(tt.severity); got != tt.want {
			t.Errorf("SeverityText(%d) = %q, want %q", tt.severity, got, tt.want)
		}
	}
}

func TestNewLog(t *testing.T) {
	before := time.Now()
	ev := NewLog(SeverityInfo, "request handled", attribute.String("method", "eth_call"))
	after := time.Now()

	if ev.Kind != KindLog {
		t.Errorf("Kind = %v, want KindLog", ev.Kind)
	}
	if ev.Body != "request handled" {
		t.Errorf("Body = %q", ev.Body)
	}
	if ev.Severity != SeverityInfo {
		t.Errorf("Severity = %d, want %d", ev.Severity, SeverityInfo)
	}
	if ev.Time.Before(before) || ev.Time.After(after) {
		t.Errorf("Time %v not in [%v, %v]", ev.Time, before, after)
	}
	if ev.Correlated() {
		t.Error("log without ids should not be correlated")
	}
}

func TestNewMetric(t *testing.T) {
	ev := NewMetric("jsonrpc_method_calls", 1, attribute.String("method", "eth_blocknumber"))
	if ev.Kind != KindMetric {
		t.Errorf("Kind = %v, want KindMetric", ev.Kind)
	}
	if ev.Name != "jsonrpc_method_calls" {
		t.Errorf("Name = %q", ev.Name)
	}
	if ev.Value != 1 {
		t.Errorf("Value = %v, want 1", ev.Value)
	}
}

func TestSpanEvents(t *testing.T) {
	traceID := NewTraceID()
	spanID := NewSpanID()
	start := NewSpanStart("http_request", traceID, spanID)
	if start.Kind != KindSpanStart {
		t.Errorf("Kind = %v, want KindSpanStart", start.Kind)
	}
	if !start.Correlated() {
		t.Error("span start should be correlated")
	}

	end := NewSpanEnd("http_request", traceID, spanID, start.Time)
	if end.Kind != KindSpanEnd {
		t.Errorf("Kind = %v, want KindSpanEnd", end.Kind)
	}
	if !end.Start.Equal(start.Time) {
		t.Errorf("Start = %v, want %v", end.Start, start.Time)
	}
	if end.Time.Before(end.Start) {
		t.Error("span end time precedes start time")
	}
}

func TestWithCorrelation(t *testing.T) {
	traceID := NewTraceID()
	spanID := NewSpanID()

	orig := NewLog(SeverityWarn, "slow request")
	correlated := orig.WithCorrelation(traceID, spanID)

	if orig.Correlated() {
		t.Error("original event mutated by WithCorrelation")
	}
	if correlated.TraceID != traceID || correlated.SpanID != spanID {
		t.Error("correlation ids not attached")
	}
	if correlated.Body != orig.Body {
		t.Error("body lost during correlation")
	}
}

func TestIDGeneration(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewTraceID()
		if !id.IsValid() {
			t.Fatal("generated invalid trace id")
		}
		if seen[id.String()] {
			t.Fatalf("duplicate trace id %s", id)
		}
		seen[id.String()] = true
	}

	a, b := NewSpanID(), NewSpanID()
	if !a.IsValid() || !b.IsValid() {
		t.Fatal("generated invalid span id")
	}
	if a == b {
		t.Error("consecutive span ids collided")
	}
}
