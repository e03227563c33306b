// Package middleware provides HTTP middleware for the web console.
package middleware

import (
	"net/http"
	"time"

	"github.com/autounite/admin-console/internal/logging"
)

// TraceHeader carries the request's trace id in both directions.
const TraceHeader = "X-Trace-ID"

// TracingMiddleware adds a trace ID to all requests and logs them on completion.
type TracingMiddleware struct {
	logger *logging.Logger
}

// NewTracingMiddleware creates a new tracing middleware.
func NewTracingMiddleware(logger *logging.Logger) *TracingMiddleware {
	return &TracingMiddleware{
		logger: logger,
	}
}

// Handler returns the tracing middleware handler.
func (m *TracingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceHeader)
		if traceID == "" {
			traceID = logging.NewTraceID()
		}

		ctx, info := withRequestInfo(logging.WithTraceID(r.Context(), traceID))
		w.Header().Set(TraceHeader, traceID)

		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		start := time.Now()
		next.ServeHTTP(rw, r.WithContext(ctx))

		// The auth middleware may have noted the user further down the chain.
		m.logger.LogRequest(logging.WithUserID(ctx, info.userID), r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}
