package event

import (
	"crypto/rand"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Kind identifies the variant of a telemetry event.
type Kind uint8

const (
	// KindLog is a structured log record.
	KindLog Kind = iota
	// KindSpanStart marks the beginning of a span.
	KindSpanStart
	// KindSpanEnd marks the end of a span and carries its full timing.
	KindSpanEnd
	// KindMetric is a single metric data point.
	KindMetric
)

// String returns the kind name for logging and metric labels.
func (k Kind) String() string {
	switch k {
	case KindLog:
		return "log"
	case KindSpanStart:
		return "span_start"
	case KindSpanEnd:
		return "span_end"
	case KindMetric:
		return "metric"
	default:
		return "unknown"
	}
}

// OTEL log severity numbers.
// See https://opentelemetry.io/docs/specs/otel/logs/data-model/#severity-fields
const (
	SeverityDebug int32 = 5
	SeverityInfo  int32 = 9
	SeverityWarn  int32 = 13
	SeverityError int32 = 17
	SeverityFatal int32 = 21
)

// SeverityText returns the OTEL severity text for a severity number.
func SeverityText(severity int32) string {
	switch {
	case severity >= 21:
		return "FATAL"
	case severity >= 17:
		return "ERROR"
	case severity >= 13:
		return "WARN"
	case severity >= 9:
		return "INFO"
	case severity >= 5:
		return "DEBUG"
	default:
		return "TRACE"
	}
}

// Event is the uniform internal representation of a telemetry event.
// It is immutable once constructed: producers hand it to the queue and
// never touch it again, so no synchronization is needed on its fields.
//
// Time comes from time.Now and therefore carries both the wall clock
// reading (used for OTLP timestamps) and the runtime monotonic reading
// (used for batch age measurement).
type Event struct {
	Kind Kind
	Time time.Time

	// Name is the span name (SpanStart/SpanEnd) or metric name (Metric).
	Name string

	// Body and Severity are set for KindLog only.
	Body     string
	Severity int32

	// Value is set for KindMetric only.
	Value float64

	// Start is the span start time, set for KindSpanEnd only.
	// OTLP has no span-start message, so the full span timing travels
	// on the SpanEnd event.
	Start time.Time

	// Correlation identifiers. Zero values mean "not correlated".
	TraceID trace.TraceID
	SpanID  trace.SpanID

	Attrs []attribute.KeyValue
}

// NewLog creates a log record event.
func NewLog(severity int32, body string, attrs ...attribute.KeyValue) Event {
	return Event{
		Kind:     KindLog,
		Time:     time.Now(),
		Body:     body,
		Severity: severity,
		Attrs:    attrs,
	}
}

// NewMetric creates a metric point event.
func NewMetric(name string, value float64, attrs ...attribute.KeyValue) Event {
	return Event{
		Kind:  KindMetric,
		Time:  time.Now(),
		Name:  name,
		Value: value,
		Attrs: attrs,
	}
}

// NewSpanStart creates a span-start event.
func NewSpanStart(name string, traceID trace.TraceID, spanID trace.SpanID, attrs ...attribute.KeyValue) Event {
	return Event{
		Kind:    KindSpanStart,
		Time:    time.Now(),
		Name:    name,
		TraceID: traceID,
		SpanID:  spanID,
		Attrs:   attrs,
	}
}

// NewSpanEnd creates a span-end event carrying the span's full timing.
func NewSpanEnd(name string, traceID trace.TraceID, spanID trace.SpanID, start time.Time, attrs ...attribute.KeyValue) Event {
	return Event{
		Kind:    KindSpanEnd,
		Time:    time.Now(),
		Name:    name,
		Start:   start,
		TraceID: traceID,
		SpanID:  spanID,
		Attrs:   attrs,
	}
}

// WithCorrelation returns a copy of the event with trace/span ids attached.
func (e Event) WithCorrelation(traceID trace.TraceID, spanID trace.SpanID) Event {
	e.TraceID = traceID
	e.SpanID = spanID
	return e
}

// Correlated reports whether the event carries a valid trace id.
func (e Event) Correlated() bool {
	return e.TraceID.IsValid()
}

// NewTraceID generates a random 128-bit trace id.
func NewTraceID() trace.TraceID {
	var id trace.TraceID
	_, _ = rand.Read(id[:])
	return id
}

// NewSpanID generates a random 64-bit span id.
func NewSpanID() trace.SpanID {
	var id trace.SpanID
	_, _ = rand.Read(id[:])
	return id
}
