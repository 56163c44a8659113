// Package metrics exposes Prometheus instruments for the API.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bizworx_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	authFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bizworx_auth_failures_total",
		Help: "Rejected authentication attempts by method",
	}, []string{"method"})

	apiKeysIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bizworx_api_keys_issued_total",
		Help: "API keys issued or rotated",
	})

	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bizworx_events_dropped_total",
		Help: "Activity events dropped because the producer queue was full",
	})

	notificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bizworx_notifications_total",
		Help: "Outbound notifications by result",
	}, []string{"result"})
)

// GinMiddleware records request latency by route template
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// Handler serves the Prometheus scrape endpoint
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// AuthFailure counts a rejected credential of the given method (password, pin, api_key, session)
func AuthFailure(method string) {
	authFailures.WithLabelValues(method).Inc()
}

func APIKeyIssued() {
	apiKeysIssued.Inc()
}

func EventDropped() {
	eventsDropped.Inc()
}

// Notification counts a notification attempt; result is sent, failed or retried
func Notification(result string) {
	notificationsSent.WithLabelValues(result).Inc()
}
