package gateway

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/relaydock/mcpgate/common/trace"
	"github.com/relaydock/mcpgate/internal/observability"
)

// statusWriter captures the response status for the request log.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// traceMiddleware assigns each request a trace id, honoring one supplied by
// the caller, and logs the request once it completes. The trace id is echoed
// in the response and forwarded to the upstream via the request context.
func traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(trace.HeaderName)
		if traceID == "" {
			traceID = trace.NewID()
		}
		ctx := trace.WithTraceID(r.Context(), traceID)
		w.Header().Set(trace.HeaderName, traceID)

		sw := &statusWriter{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(sw, r.WithContext(ctx))

		observability.WithTrace(ctx).Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// recoverMiddleware converts a handler panic into a 500 instead of tearing
// down the connection.
func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				observability.WithTrace(r.Context()).Error("handler panic",
					"panic", rec,
					"stack", string(debug.Stack()),
				)
				writeErrorBody(w, http.StatusInternalServerError, "internal", "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
