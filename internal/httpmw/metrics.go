// Package httpmw holds the HTTP middleware shared by Events and Elections:
// request metrics, correlation ids, bearer-credential authentication, and
// rate limiting.
package httpmw

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ekklesia_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ekklesia_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)

	RateLimitRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ekklesia_rate_limit_rejections_total",
			Help: "Total number of requests rejected by the rate limiter.",
		},
		[]string{"service", "operation"},
	)

	TabulationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ekklesia_tabulation_duration_seconds",
			Help:    "Duration of result tabulation runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"voting_type"},
	)
)

// Metrics returns a chi middleware recording request counts/latency for service.
func Metrics(service string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			path := chi.RouteContext(r.Context()).RoutePattern()
			if path == "" {
				path = r.URL.Path
			}
			status := strconv.Itoa(ww.Status())
			httpRequestsTotal.WithLabelValues(service, r.Method, path, status).Inc()
			httpRequestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}
