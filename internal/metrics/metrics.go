package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/judyrop/storefront-analytics/internal/analytics"
)

type Registry struct {
	reg             *prometheus.Registry
	Queries         *prometheus.CounterVec
	QueryLatencySec *prometheus.HistogramVec

	HTTPRequests   *prometheus.CounterVec
	HTTPLatencySec *prometheus.HistogramVec
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	queries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analytics_queries_total",
		Help: "Dispatched analytics queries by report kind and outcome.",
	}, []string{"kind", "outcome"})
	queryLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "analytics_query_duration_seconds",
		Help:    "Time spent producing a report.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "path", "status"})
	httpLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	r.MustRegister(queries, queryLatency, httpRequests, httpLatency)
	return &Registry{
		reg:             r,
		Queries:         queries,
		QueryLatencySec: queryLatency,
		HTTPRequests:    httpRequests,
		HTTPLatencySec:  httpLatency,
	}
}

// ObserveQuery implements analytics.Observer.
func (r *Registry) ObserveQuery(_ context.Context, ev analytics.QueryEvent) {
	kind := string(ev.Kind)
	r.Queries.WithLabelValues(kind, ev.Outcome).Inc()
	r.QueryLatencySec.WithLabelValues(kind).Observe(ev.Duration.Seconds())
}

// Middleware records every request under its route pattern, so /region/:region
// stays one series.
func (r *Registry) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		r.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		r.HTTPLatencySec.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
