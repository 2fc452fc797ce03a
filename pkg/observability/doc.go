// Package observability provides structured logging, Prometheus metrics, and OpenTelemetry tracing.
//
// # Structured Logging
//
// Logger writes JSON lines through log/slog:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("district_id", districtID).Info("district selected")
//
// Request-scoped loggers travel in the context. FromContext adds the request
// id and the authenticated user id when present:
//
//	observability.FromContext(r.Context()).WithError(err).Error("dispatch failed")
//
// # Prometheus Metrics
//
// NewMetrics registers every collector on the given registry:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.BusDispatchTotal.WithLabelValues("command", "CreateUser", "ok").Inc()
//
// HTTPMetricsMiddleware records request counts and latencies labelled by the
// matched route template, and RegisterMetricsEndpoint exposes /metrics.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	observability.RegisterHealthRoutes(mux, checker)
//
// Postgres is required for readiness; Redis only degrades it.
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "schoolhouse",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// # Shutdown
//
// ShutdownManager waits for SIGINT or SIGTERM, stops the registered HTTP
// servers and then runs the registered shutdown functions.
package observability
