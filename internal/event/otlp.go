package event

import (
	"go.opentelemetry.io/otel/attribute"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
)

// scopeName identifies this library as the instrumentation scope of all
// exported records.
const scopeName = "github.com/spire-labs/telemetry"

// Encoder converts batches of events into OTLP export requests.
// The resource attributes are converted once at construction and shared
// by every request.
type Encoder struct {
	resource *resourcepb.Resource
	scope    *commonpb.InstrumentationScope
}

// NewEncoder creates an encoder stamping every request with the given
// resource attributes.
func NewEncoder(resourceAttrs []attribute.KeyValue) *Encoder {
	return &Encoder{
		resource: &resourcepb.Resource{
			Attributes: toKeyValues(resourceAttrs),
		},
		scope: &commonpb.InstrumentationScope{
			Name: scopeName,
		},
	}
}

// Requests holds the per-signal OTLP requests produced from one batch.
// A nil request means the batch contained no events of that signal.
type Requests struct {
	Logs    *collogspb.ExportLogsServiceRequest
	Traces  *coltracepb.ExportTraceServiceRequest
	Metrics *colmetricspb.ExportMetricsServiceRequest
}

// Encode partitions a batch into per-signal OTLP requests, preserving
// event order within each signal.
//
// SpanStart events have no OTLP representation: the span is materialized
// from its SpanEnd event, which carries the start time. SpanStarts still
// flow through the pipeline for ordering and occupancy accounting and are
// simply skipped here.
func (c *Encoder) Encode(events []Event) Requests {
	var (
		logs    []*logspb.LogRecord
		spans   []*tracepb.Span
		metrics []*metricspb.Metric
	)

	for i := range events {
		ev := &events[i]
		switch ev.Kind {
		case KindLog:
			logs = append(logs, c.encodeLog(ev))
		case KindSpanEnd:
			spans = append(spans, c.encodeSpan(ev))
		case KindMetric:
			metrics = append(metrics, c.encodeMetric(ev))
		case KindSpanStart:
			// No wire shape; see above.
		}
	}

	var out Requests
	if len(logs) > 0 {
		out.Logs = &collogspb.ExportLogsServiceRequest{
			ResourceLogs: []*logspb.ResourceLogs{{
				Resource: c.resource,
				ScopeLogs: []*logspb.ScopeLogs{{
					Scope:      c.scope,
					LogRecords: logs,
				}},
			}},
		}
	}
	if len(spans) > 0 {
		out.Traces = &coltracepb.ExportTraceServiceRequest{
			ResourceSpans: []*tracepb.ResourceSpans{{
				Resource: c.resource,
				ScopeSpans: []*tracepb.ScopeSpans{{
					Scope: c.scope,
					Spans: spans,
				}},
			}},
		}
	}
	if len(metrics) > 0 {
		out.Metrics = &colmetricspb.ExportMetricsServiceRequest{
			ResourceMetrics: []*metricspb.ResourceMetrics{{
				Resource: c.resource,
				ScopeMetrics: []*metricspb.ScopeMetrics{{
					Scope:   c.scope,
					Metrics: metrics,
				}},
			}},
		}
	}
	return out
}

func (c *Encoder) encodeLog(ev *Event) *logspb.LogRecord {
	rec := &logspb.LogRecord{
		TimeUnixNano:   uint64(ev.Time.UnixNano()),
		SeverityNumber: logspb.SeverityNumber(ev.Severity),
		SeverityText:   SeverityText(ev.Severity),
		Body: &commonpb.AnyValue{
			Value: &commonpb.AnyValue_StringValue{StringValue: ev.Body},
		},
		Attributes: toKeyValues(ev.Attrs),
	}
	if ev.TraceID.IsValid() {
		rec.TraceId = ev.TraceID[:]
	}
	if ev.SpanID.IsValid() {
		rec.SpanId = ev.SpanID[:]
	}
	return rec
}

func (c *Encoder) encodeSpan(ev *Event) *tracepb.Span {
	start := ev.Start
	if start.IsZero() {
		start = ev.Time
	}
	return &tracepb.Span{
		TraceId:           ev.TraceID[:],
		SpanId:            ev.SpanID[:],
		Name:              ev.Name,
		Kind:              tracepb.Span_SPAN_KIND_INTERNAL,
		StartTimeUnixNano: uint64(start.UnixNano()),
		EndTimeUnixNano:   uint64(ev.Time.UnixNano()),
		Attributes:        toKeyValues(ev.Attrs),
	}
}

func (c *Encoder) encodeMetric(ev *Event) *metricspb.Metric {
	return &metricspb.Metric{
		Name: ev.Name,
		Data: &metricspb.Metric_Gauge{
			Gauge: &metricspb.Gauge{
				DataPoints: []*metricspb.NumberDataPoint{{
					TimeUnixNano: uint64(ev.Time.UnixNano()),
					Value:        &metricspb.NumberDataPoint_AsDouble{AsDouble: ev.Value},
					Attributes:   toKeyValues(ev.Attrs),
				}},
			},
		},
	}
}

// toKeyValues converts OTEL API attributes to OTLP proto key/values.
func toKeyValues(attrs []attribute.KeyValue) []*commonpb.KeyValue {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]*commonpb.KeyValue, 0, len(attrs))
	for _, kv := range attrs {
		out = append(out, &commonpb.KeyValue{
			Key:   string(kv.Key),
			Value: toAnyValue(kv.Value),
		})
	}
	return out
}

func toAnyValue(v attribute.Value) *commonpb.AnyValue {
	switch v.Type() {
	case attribute.BOOL:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_BoolValue{BoolValue: v.AsBool()}}
	case attribute.INT64:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: v.AsInt64()}}
	case attribute.FLOAT64:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_DoubleValue{DoubleValue: v.AsFloat64()}}
	case attribute.STRING:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: v.AsString()}}
	case attribute.BOOLSLICE:
		vals := v.AsBoolSlice()
		arr := make([]*commonpb.AnyValue, 0, len(vals))
		for _, b := range vals {
			arr = append(arr, &commonpb.AnyValue{Value: &commonpb.AnyValue_BoolValue{BoolValue: b}})
		}
		return arrayValue(arr)
	case attribute.INT64SLICE:
		vals := v.AsInt64Slice()
		arr := make([]*commonpb.AnyValue, 0, len(vals))
		for _, n := range vals {
			arr = append(arr, &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: n}})
		}
		return arrayValue(arr)
	case attribute.FLOAT64SLICE:
		vals := v.AsFloat64Slice()
		arr := make([]*commonpb.AnyValue, 0, len(vals))
		for _, f := range vals {
			arr = append(arr, &commonpb.AnyValue{Value: &commonpb.AnyValue_DoubleValue{DoubleValue: f}})
		}
		return arrayValue(arr)
	case attribute.STRINGSLICE:
		vals := v.AsStringSlice()
		arr := make([]*commonpb.AnyValue, 0, len(vals))
		for _, s := range vals {
			arr = append(arr, &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: s}})
		}
		return arrayValue(arr)
	default:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: v.Emit()}}
	}
}

func arrayValue(vals []*commonpb.AnyValue) *commonpb.AnyValue {
	return &commonpb.AnyValue{
		Value: &commonpb.AnyValue_ArrayValue{ArrayValue: &commonpb.ArrayValue{Values: vals}},
	}
}
