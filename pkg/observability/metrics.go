package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Pipeline metrics
	GuardRejectionsTotal *prometheus.CounterVec
	BusDispatchTotal     *prometheus.CounterVec
	BusDispatchDuration  *prometheus.HistogramVec

	// Cache metrics
	IdentityCacheHitsTotal   *prometheus.CounterVec
	IdentityCacheMissesTotal prometheus.Counter

	// Upstream metrics
	IdentityProviderCallsTotal *prometheus.CounterVec
	RateLimitedTotal           *prometheus.CounterVec

	// Database metrics
	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge
	DBConnectionsIdle  prometheus.Gauge

	// Business metrics
	UsersTotal *prometheus.GaugeVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schoolhouse_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "schoolhouse_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		GuardRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schoolhouse_guard_rejections_total",
				Help: "Requests rejected by a pipeline guard",
			},
			[]string{"guard", "kind"},
		),
		BusDispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schoolhouse_bus_dispatch_total",
				Help: "Commands and queries dispatched",
			},
			[]string{"kind", "name", "outcome"},
		),
		BusDispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "schoolhouse_bus_dispatch_duration_seconds",
				Help:    "Handler duration including the unit of work",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"kind", "name"},
		),

		IdentityCacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schoolhouse_identity_cache_hits_total",
				Help: "Identity cache hits by layer",
			},
			[]string{"layer"},
		),
		IdentityCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "schoolhouse_identity_cache_misses_total",
				Help: "Identity lookups that reached storage",
			},
		),

		IdentityProviderCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schoolhouse_identity_provider_calls_total",
				Help: "Calls to the identity provider",
			},
			[]string{"operation", "outcome"},
		),
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schoolhouse_rate_limited_total",
				Help: "Requests rejected by a rate limiter",
			},
			[]string{"limiter"},
		),

		DBConnectionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "schoolhouse_db_connections_open",
				Help: "Number of open database connections",
			},
		),
		DBConnectionsInUse: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "schoolhouse_db_connections_in_use",
				Help: "Number of database connections in use",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "schoolhouse_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),

		UsersTotal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "schoolhouse_users",
				Help: "Users by role and status",
			},
			[]string{"role", "status"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.GuardRejectionsTotal,
		m.BusDispatchTotal,
		m.BusDispatchDuration,
		m.IdentityCacheHitsTotal,
		m.IdentityCacheMissesTotal,
		m.IdentityProviderCallsTotal,
		m.RateLimitedTotal,
		m.DBConnectionsOpen,
		m.DBConnectionsInUse,
		m.DBConnectionsIdle,
		m.UsersTotal,
	)

	return m
}

// RecordDBStats copies connection pool statistics into the gauges
func (m *Metrics) RecordDBStats(stats sql.DBStats) {
	m.DBConnectionsOpen.Set(float64(stats.OpenConnections))
	m.DBConnectionsInUse.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// routeLabel returns the matched route template so ids never become label values
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// It must run inside the router so the matched route is known.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, gatherer prometheus.Gatherer) {
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
