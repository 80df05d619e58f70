package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/spire-labs/telemetry/internal/event"
)

// RequestIDHeader carries the per-request identifier on responses.
const RequestIDHeader = "X-Request-Id"

// statusRecorder captures the response status for the completion events.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// Tracing surrounds each request with a span and start/finish log events.
// Every request gets a fresh trace with a uuid request id attribute; the
// correlation IDs are placed in the request context so events emitted by
// inner handlers and middleware attach to the same trace. A 5xx response
// downgrades the finish log to an error.
func Tracing(rec Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := uuid.NewString()
			traceID := event.NewTraceID()
			spanID := event.NewSpanID()

			attrs := []attribute.KeyValue{
				attribute.String("request_id", requestID),
				attribute.String("http.method", r.Method),
				attribute.String("http.path", r.URL.Path),
			}

			_ = rec.Record(event.NewSpanStart("http_request", traceID, spanID, attrs...))
			_ = rec.Record(event.NewLog(event.SeverityInfo, "incoming request", attrs...).WithCorrelation(traceID, spanID))

			r = r.WithContext(event.ContextWithCorrelation(r.Context(), traceID, spanID))
			w.Header().Set(RequestIDHeader, requestID)
			sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			start := time.Now()
			next.ServeHTTP(sr, r)
			elapsed := time.Since(start)

			finishAttrs := append(attrs,
				attribute.Int("http.status", sr.status),
				attribute.Int64("latency_ms", elapsed.Milliseconds()),
			)

			severity := event.SeverityInfo
			message := "request succeeded"
			if sr.status >= 500 {
				severity = event.SeverityError
				message = "request failed"
			}
			_ = rec.Record(event.NewLog(severity, message, finishAttrs...).WithCorrelation(traceID, spanID))
			_ = rec.Record(event.NewSpanEnd("http_request", traceID, spanID, start, finishAttrs...))
		})
	}
}
