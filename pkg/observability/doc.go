// Package observability provides structured logging, Prometheus metrics,
// health probes and OpenTelemetry tracing for the joboost binaries.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("session_id", id).Info("transaction settled")
//
// Request-scoped loggers travel in the context:
//
//	observability.FromContext(ctx).WithError(err).Warn("reconcile failed")
//
// # Prometheus Metrics
//
// Domain counters are recorded through nil-safe helpers so that components can
// be constructed without a registry in tests:
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.RecordReconciliation("webhook", "granted", elapsed)
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	checker.AddCheck("bolt", true, boltStore.Ping)
//	observability.RegisterHealthRoutes(mux, checker)
//
// # Tracing
//
// InitOTel installs OTLP/gRPC exporters as the global providers; Tracer
// returns the application tracer used for reconciliation spans.
package observability
