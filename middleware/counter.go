package middleware

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/spire-labs/telemetry/internal/event"
)

// MethodCounter emits a call-count metric event per JSON-RPC method. When
// Validation ran earlier in the chain the parsed request is reused;
// otherwise the body is parsed here and requests that fail to parse are
// forwarded uncounted.
func MethodCounter(rec Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rpc, _, ok := parseRPC(r); ok {
				ev := event.NewMetric("jsonrpc.method.calls", 1,
					attribute.String("method", strings.ToLower(rpc.Method)),
				)
				_ = rec.Record(stamped(r, ev))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// stamped applies any request-scoped correlation IDs to the event.
func stamped(r *http.Request, ev event.Event) event.Event {
	if traceID, spanID, ok := event.CorrelationFromContext(r.Context()); ok {
		return ev.WithCorrelation(traceID, spanID)
	}
	return ev
}
