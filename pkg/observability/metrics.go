package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Payment metrics
	CheckoutsTotal       *prometheus.CounterVec
	ReconciliationsTotal *prometheus.CounterVec
	ReconcileDuration    *prometheus.HistogramVec
	WebhookEventsTotal   *prometheus.CounterVec
	PendingTransactions  prometheus.Gauge

	// Entitlement metrics
	CreditReservationsTotal *prometheus.CounterVec
	CreditsConsumedTotal    *prometheus.CounterVec

	// Credential cache metrics
	CredentialRefreshesTotal  *prometheus.CounterVec
	CredentialRefreshDuration *prometheus.HistogramVec
	CredentialCacheHitsTotal  *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "joboost_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "joboost_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "joboost_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "route"},
		),

		CheckoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "joboost_checkouts_total",
				Help: "Checkout sessions opened, by plan and result",
			},
			[]string{"plan", "result"},
		),
		ReconciliationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "joboost_reconciliations_total",
				Help: "Reconciliation attempts, by notification source and outcome",
			},
			[]string{"source", "outcome"},
		),
		ReconcileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "joboost_reconcile_duration_seconds",
				Help:    "Time spent settling a transaction in the store",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"source"},
		),
		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "joboost_webhook_events_total",
				Help: "Payment provider webhook events received",
			},
			[]string{"type", "result"},
		),
		PendingTransactions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "joboost_pending_transactions",
				Help: "Stale pending transactions seen by the last sweep",
			},
		),

		CreditReservationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "joboost_credit_reservations_total",
				Help: "Credit reservations, by pool and result",
			},
			[]string{"pool", "result"},
		),
		CreditsConsumedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "joboost_credits_consumed_total",
				Help: "Credits debited from user balances",
			},
			[]string{"pool"},
		),

		CredentialRefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "joboost_credential_refreshes_total",
				Help: "Access token refreshes, by credential and result",
			},
			[]string{"credential", "result"},
		),
		CredentialRefreshDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "joboost_credential_refresh_duration_seconds",
				Help:    "Access token refresh latency",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15},
			},
			[]string{"credential"},
		),
		CredentialCacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "joboost_credential_cache_hits_total",
				Help: "Access tokens served from cache",
			},
			[]string{"credential"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.CheckoutsTotal,
		m.ReconciliationsTotal,
		m.ReconcileDuration,
		m.WebhookEventsTotal,
		m.PendingTransactions,
		m.CreditReservationsTotal,
		m.CreditsConsumedTotal,
		m.CredentialRefreshesTotal,
		m.CredentialRefreshDuration,
		m.CredentialCacheHitsTotal,
	)

	return m
}

// RecordCheckout counts a checkout attempt.
func (m *Metrics) RecordCheckout(plan, result string) {
	if m == nil {
		return
	}
	m.CheckoutsTotal.WithLabelValues(plan, result).Inc()
}

// RecordReconciliation counts a reconcile call and how long the store step took.
func (m *Metrics) RecordReconciliation(source, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ReconciliationsTotal.WithLabelValues(source, outcome).Inc()
	m.ReconcileDuration.WithLabelValues(source).Observe(d.Seconds())
}

// RecordWebhookEvent counts a received webhook event.
func (m *Metrics) RecordWebhookEvent(eventType, result string) {
	if m == nil {
		return
	}
	m.WebhookEventsTotal.WithLabelValues(eventType, result).Inc()
}

// SetPendingTransactions reports the size of the last sweep batch.
func (m *Metrics) SetPendingTransactions(n int) {
	if m == nil {
		return
	}
	m.PendingTransactions.Set(float64(n))
}

// RecordReservation counts a guard decision and, when granted, the credits spent.
func (m *Metrics) RecordReservation(pool, result string, amount int64) {
	if m == nil {
		return
	}
	m.CreditReservationsTotal.WithLabelValues(pool, result).Inc()
	if result == "granted" && amount > 0 {
		m.CreditsConsumedTotal.WithLabelValues(pool).Add(float64(amount))
	}
}

// RecordCredentialRefresh counts a token refresh against the remote provider.
func (m *Metrics) RecordCredentialRefresh(name, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.CredentialRefreshesTotal.WithLabelValues(name, result).Inc()
	m.CredentialRefreshDuration.WithLabelValues(name).Observe(d.Seconds())
}

// RecordCredentialHit counts a token served from cache.
func (m *Metrics) RecordCredentialHit(name string) {
	if m == nil {
		return
	}
	m.CredentialCacheHitsTotal.WithLabelValues(name).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// routeLabel returns the mux route template so that path parameters such as
// session ids do not explode label cardinality.
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(serveMux *http.ServeMux, registry *prometheus.Registry) {
	serveMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
