// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// Prometheus instrumentation for HTTP traffic. Labels stay bounded:
//
//   - method: HTTP verb
//   - path:   the registered Gin route, or "unmatched"
//   - status: numeric status code as a string
//   - tier:   identity kind resolved by Authenticate ("user" or "anonymous")
//
// Deep analyses hold their event stream open for the whole run, so streams
// get their own gauge and the latency buckets reach past the deep budget.
package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// unmatchedPath labels requests that matched no route.
const unmatchedPath = "unmatched"

var (
	httpThrottled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_throttled_total",
			Help: "Requests rejected by an edge rate limiter.",
		},
		[]string{"limiter"},
	)

	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route, status and caller tier.",
		},
		[]string{"method", "path", "status", "tier"},
	)

	// No status label on the histograms.
	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 180},
		},
		[]string{"method", "path"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	httpStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_event_streams_open",
			Help: "Server-sent event streams currently open.",
		},
	)

	httpRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_response_size_bytes",
			Help: "Size of HTTP responses in bytes.",
			// Reports with raw sources run to a few hundred KiB.
			Buckets: prometheus.ExponentialBuckets(256, 4, 9),
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpStreams, httpRespSize, httpThrottled)
}

// Metrics returns a Gin middleware that instruments requests with Prometheus.
// Mount it after Authenticate so the tier label is known.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		if wantsStream(c) {
			httpStreams.Inc()
			defer httpStreams.Dec()
		}

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = unmatchedPath
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())
		tier := string(IdentityFrom(c).Kind)

		httpReqs.WithLabelValues(method, path, status, tier).Inc()
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}

func wantsStream(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "text/event-stream")
}
