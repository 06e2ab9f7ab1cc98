package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Labels use the registered route (c.FullPath) so conversation and message
// ids never become label values.
var (
	httpReqs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "path", "status"})

	httpLat = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_requests_inflight",
		Help: "HTTP requests currently being served.",
	})

	httpRespSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_response_size_bytes",
		Help:    "HTTP response sizes by method and route.",
		Buckets: prometheus.ExponentialBuckets(256, 4, 8),
	}, []string{"method", "path"})

	wsUpgrades = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "http_websocket_upgrades_total",
		Help: "Requests switched to the websocket protocol.",
	})
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize, wsUpgrades)
}

// routeLabel is the route template, or "unmatched" for 404s so random paths
// cannot grow the label set.
func routeLabel(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return "unmatched"
}

// Metrics records request counters, latency and response size. Upgraded
// websocket requests are counted separately and kept out of the latency
// histogram, since their handler returns once the connection is handed off.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		method, path := c.Request.Method, routeLabel(c)
		status := c.Writer.Status()
		httpReqs.WithLabelValues(method, path, strconv.Itoa(status)).Inc()

		if status == http.StatusSwitchingProtocols {
			wsUpgrades.Inc()
			return
		}
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}
