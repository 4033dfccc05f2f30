package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "citypulse_http_request_duration_seconds",
		Help:    "HTTP request latency by method and path pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	pulsesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "citypulse_pulses_created_total",
		Help: "Pulses accepted and persisted.",
	})

	pulsesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "citypulse_pulses_rejected_total",
		Help: "Pulse submissions rejected, by reason.",
	}, []string{"reason"})
)

func withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		pattern := r.Pattern
		if pattern == "" {
			pattern = r.URL.Path
		}
		requestDuration.WithLabelValues(
			r.Method,
			pattern,
			strconv.Itoa(wrapped.status),
		).Observe(time.Since(start).Seconds())
	})
}
