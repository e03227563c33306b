// Package metrics exposes Prometheus collectors for outbound backend calls
// and the web console.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	apiRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "admin_console",
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "Total number of requests sent to the backend API.",
		},
		[]string{"method", "path", "status"},
	)

	apiDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "admin_console",
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "Duration of backend API requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	sessionTeardowns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "admin_console",
			Subsystem: "session",
			Name:      "teardowns_total",
			Help:      "Sessions cleared because the backend answered 401.",
		},
	)

	logins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "admin_console",
			Subsystem: "session",
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		},
		[]string{"outcome"},
	)

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "admin_console",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight console requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "admin_console",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of console requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "admin_console",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of console requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)
)

func init() {
	Registry.MustRegister(
		apiRequests,
		apiDuration,
		sessionTeardowns,
		logins,
		httpInFlight,
		httpRequests,
		httpDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordAPIRequest records one backend call. status is 0 for transport failures.
func RecordAPIRequest(method, path string, status int, duration time.Duration) {
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	path = CanonicalAPIPath(path)
	method = strings.ToUpper(method)
	apiRequests.WithLabelValues(method, path, code).Inc()
	apiDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordSessionTeardown counts a 401-triggered session teardown.
func RecordSessionTeardown() {
	sessionTeardowns.Inc()
}

// RecordLogin counts a login attempt by outcome ("success", "failure", "throttled").
func RecordLogin(outcome string) {
	logins.WithLabelValues(outcome).Inc()
}

// InstrumentHandler records console request metrics, labelled by mux route
// template where one matched.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// CanonicalAPIPath collapses backend paths so that record ids do not blow up
// label cardinality: /api/v1/queries/abc123 becomes /api/v1/queries/:id.
func CanonicalAPIPath(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	// api, v1, resource, [id|sub]
	if len(parts) < 4 || parts[0] != "api" {
		return "/" + trimmed
	}
	switch parts[3] {
	case "stats", "no-results", "me", "login", "register":
		return "/" + strings.Join(parts[:4], "/")
	}
	return "/" + strings.Join(parts[:3], "/") + "/:id"
}
