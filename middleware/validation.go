package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/spire-labs/telemetry/internal/logging"
)

// Validation rejects requests whose body is not a structurally valid
// JSON-RPC envelope, answering with a -32600 error. Valid requests pass
// through with the parsed envelope and body size stored in the request
// context so later middleware does not re-read the body. Non-POST
// requests are forwarded untouched.
//
// No size limit is enforced on the body here; wrap with
// http.MaxBytesReader when exposure warrants it.
func Validation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}

		body, err := readAndRestore(r)
		if err != nil {
			logging.Warn("failed to read request body", logging.F(
				"middleware", "validation",
				"error", err.Error(),
			))
			writeInvalid(w, "Failed to read request body")
			return
		}

		var rpc RPCRequest
		if err := json.Unmarshal(body, &rpc); err != nil || rpc.Method == "" {
			logging.Warn("invalid JSON-RPC request", logging.F(
				"middleware", "validation",
				"remote_addr", r.RemoteAddr,
			))
			writeInvalid(w, "Invalid JSON-RPC request")
			return
		}

		r = r.WithContext(withParsedRequest(r.Context(), rpc, len(body)))
		next.ServeHTTP(w, r)
	})
}
