package api

import (
	"net/http"

	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/joboost/pkg/httputil"
	"github.com/platinummonkey/joboost/pkg/middleware"
	"github.com/platinummonkey/joboost/pkg/observability"
	"github.com/platinummonkey/joboost/pkg/plans"
)

// registeredUsersCacheSize bounds the set of user ids known to have a balance.
const registeredUsersCacheSize = 10000

// Options wires the services behind the HTTP API. Documents, Spontaneous,
// Applications and Recommendations may be nil, in which case their routes are
// not registered.
type Options struct {
	Catalog         *plans.Catalog
	Checkouts       CheckoutService
	Payments        PaymentReconciler
	Accounts        AccountService
	Documents       DocumentService
	Spontaneous     SpontaneousService
	Applications    ApplicationService
	Recommendations RecommendationService

	Verifier *middleware.TokenVerifier
	// StatusLimiter bounds payment status polling per user; unlimited when nil.
	StatusLimiter middleware.Limiter

	Logger         *observability.Logger
	Metrics        *observability.Metrics
	AllowedOrigins []string
	MaxBodyBytes   int64
	// Tracing wraps the handler with otelhttp.
	Tracing bool
}

// Server is the HTTP API.
type Server struct {
	router  *mux.Router
	handler http.Handler

	catalog         *plans.Catalog
	checkouts       CheckoutService
	payments        PaymentReconciler
	accounts        AccountService
	documents       DocumentService
	spontaneous     SpontaneousService
	applications    ApplicationService
	recommendations RecommendationService

	auth        *middleware.AuthMiddleware
	optional    *middleware.AuthMiddleware
	statusLimit *middleware.RateLimitMiddleware
	registered  *lru.Cache[string, struct{}]
	logger      *observability.Logger
}

// NewServer creates the API server and its routes.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	catalog := opts.Catalog
	if catalog == nil {
		catalog = plans.DefaultCatalog()
	}
	registered, err := lru.New[string, struct{}](registeredUsersCacheSize)
	if err != nil {
		panic(err)
	}

	s := &Server{
		router:          mux.NewRouter(),
		catalog:         catalog,
		checkouts:       opts.Checkouts,
		payments:        opts.Payments,
		accounts:        opts.Accounts,
		documents:       opts.Documents,
		spontaneous:     opts.Spontaneous,
		applications:    opts.Applications,
		recommendations: opts.Recommendations,
		auth:            middleware.NewAuthMiddleware(opts.Verifier, false),
		optional:        middleware.NewAuthMiddleware(opts.Verifier, true),
		registered:      registered,
		logger:          logger,
	}
	if opts.StatusLimiter != nil {
		s.statusLimit = middleware.NewRateLimitMiddleware(opts.StatusLimiter, "status", logger)
	}

	s.router.Use(observability.HTTPMetricsMiddleware(opts.Metrics))
	s.setupRoutes()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	var handler http.Handler = httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.RecoveryMiddleware(logger),
		httputil.LoggingMiddleware(logger),
		httputil.CORSMiddleware(origins),
		httputil.MaxBytesMiddleware(maxBody),
	)(s.router)
	if opts.Tracing {
		handler = otelhttp.NewHandler(handler, "joboost.http")
	}
	s.handler = handler
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	r := s.router

	// Public
	r.Handle("/api/plans", s.optional.Handler(http.HandlerFunc(s.listPlans))).Methods(http.MethodGet)
	r.HandleFunc("/api/webhook/stripe", s.stripeWebhook).Methods(http.MethodPost)

	// Payments
	r.Handle("/api/payments/checkout", s.protect(s.createCheckout)).Methods(http.MethodPost)
	status := s.protect(s.paymentStatus)
	if s.statusLimit != nil {
		status = s.auth.Handler(s.statusLimit.Handler(s.ensureRegistered(http.HandlerFunc(s.paymentStatus))))
	}
	r.Handle("/api/payments/status/{session_id}", status).Methods(http.MethodGet)

	// Credits
	r.Handle("/api/credits", s.protect(s.getCredits)).Methods(http.MethodGet)

	if s.applications != nil {
		r.Handle("/api/profile", s.protect(s.getProfile)).Methods(http.MethodGet)
		r.Handle("/api/profile", s.protect(s.saveProfile)).Methods(http.MethodPost)
		r.Handle("/api/applications", s.protect(s.listApplications)).Methods(http.MethodGet)
		r.Handle("/api/applications", s.protect(s.createApplication)).Methods(http.MethodPost)
		r.Handle("/api/applications/{application_id}", s.protect(s.getApplication)).Methods(http.MethodGet)
		r.Handle("/api/applications/{application_id}", s.protect(s.updateApplication)).Methods(http.MethodPut)
		r.Handle("/api/applications/{application_id}", s.protect(s.deleteApplication)).Methods(http.MethodDelete)
		r.Handle("/api/applications/{application_id}/status", s.protect(s.setApplicationStatus)).Methods(http.MethodPatch)
		r.Handle("/api/stats", s.protect(s.getStats)).Methods(http.MethodGet)
		r.Handle("/api/stats/timeline", s.protect(s.getTimeline)).Methods(http.MethodGet)
	}

	if s.documents != nil {
		r.Handle("/api/ai/generate", s.protect(s.generate)).Methods(http.MethodPost)
	}

	if s.recommendations != nil {
		r.Handle("/api/recommendations", s.protect(s.getRecommendations)).Methods(http.MethodGet)
	}

	if s.spontaneous != nil {
		r.Handle("/api/spontaneous/search", s.protect(s.searchCompanies)).Methods(http.MethodPost)
		r.Handle("/api/spontaneous/send", s.protect(s.sendApplications)).Methods(http.MethodPost)
		r.Handle("/api/spontaneous/history", s.protect(s.listSends)).Methods(http.MethodGet)
	}
}

// protect requires an authenticated user with a balance record.
func (s *Server) protect(h http.HandlerFunc) http.Handler {
	return s.auth.Handler(s.ensureRegistered(h))
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router exposes the route table, for tests and extra registrations.
func (s *Server) Router() *mux.Router {
	return s.router
}
