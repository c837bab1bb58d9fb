// Package metrics registers the prometheus collectors exposed on /metrics.
package metrics

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "garden_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"method", "route", "status"})

	PostViews = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "garden_post_views_total",
		Help: "View counter increments by result.",
	}, []string{"result"})

	RealtimeSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "garden_realtime_subscribers",
		Help: "Open post view sockets.",
	})

	NewsletterSends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "garden_newsletter_sends_total",
		Help: "Newsletter batch sends by result.",
	}, []string{"result"})
)

// Middleware counts requests by matched route so path parameters don't explode cardinality.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
