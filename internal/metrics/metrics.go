// Package metrics exposes the Prometheus collectors of the presentation
// server.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "legallens",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "legallens",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "legallens",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	authOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "legallens",
			Subsystem: "auth",
			Name:      "operations_total",
			Help:      "Auth adapter operations by outcome.",
		},
		[]string{"op", "result"},
	)

	authDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "legallens",
			Subsystem: "auth",
			Name:      "operation_duration_seconds",
			Help:      "Duration of identity gateway round trips.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"op"},
	)

	pageRenders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "legallens",
			Subsystem: "pages",
			Name:      "renders_total",
			Help:      "Rendered pages by name.",
		},
		[]string{"page"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "legallens",
			Subsystem: "session",
			Name:      "active_controllers",
			Help:      "Session controllers currently held in memory.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		authOperations,
		authDuration,
		pageRenders,
		activeSessions,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
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

		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)
		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordAuth counts one auth adapter outcome.
func RecordAuth(op string, success bool, duration time.Duration) {
	result := "error"
	if success {
		result = "success"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	authOperations.WithLabelValues(op, result).Inc()
	authDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordPageRender counts one rendered page.
func RecordPageRender(page string) {
	pageRenders.WithLabelValues(page).Inc()
}

// SessionOpened and SessionClosed track live session controllers.
func SessionOpened() { activeSessions.Inc() }

func SessionClosed() { activeSessions.Dec() }

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath keeps label cardinality bounded: document ids and
// unknown page names collapse to a placeholder.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "auth", "api":
		return "/" + strings.Join(parts, "/")
	case "chat":
		if len(parts) > 1 {
			return "/chat/:id"
		}
		return "/chat"
	case "landing", "dashboard", "upload", "analysis", "profile",
		"logout", "theme", "healthz", "metrics":
		return "/" + parts[0]
	}
	return "/:other"
}
