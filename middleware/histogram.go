package middleware

import (
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/spire-labs/telemetry/internal/event"
)

// MethodHistogram emits body size and latency metric events per JSON-RPC
// method. Latency covers the inner handler, measured with the monotonic
// clock. Requests that do not parse as JSON-RPC are forwarded unmeasured.
func MethodHistogram(rec Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rpc, size, ok := parseRPC(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			method := attribute.String("method", strings.ToLower(rpc.Method))

			_ = rec.Record(stamped(r, event.NewMetric("jsonrpc.method.body_size", float64(size), method)))

			start := time.Now()
			next.ServeHTTP(w, r)
			elapsed := time.Since(start)

			_ = rec.Record(stamped(r, event.NewMetric(
				"jsonrpc.method.latency_ms",
				float64(elapsed.Milliseconds()),
				method,
			)))
		})
	}
}
