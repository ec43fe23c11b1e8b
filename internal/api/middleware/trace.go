// Package middleware holds HTTP middleware for the control API.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/threadsift/threadsift/internal/api/shared"
)

// Trace adds a trace ID to the request context and logs request start and
// completion with it. Apply early so all handlers see the trace ID.
func Trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := shared.SetTraceID(r.Context())
		log := slog.With("trace_id", shared.GetTraceID(ctx))

		log.Debug("request started",
			"method", r.Method,
			"path", r.URL.Path)
		start := time.Now()

		next.ServeHTTP(w, r.WithContext(ctx))

		log.Debug("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds())
	})
}
