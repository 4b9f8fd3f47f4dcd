package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/joboost/pkg/api"
	"github.com/platinummonkey/joboost/pkg/applications"
	"github.com/platinummonkey/joboost/pkg/billing"
	"github.com/platinummonkey/joboost/pkg/config"
	"github.com/platinummonkey/joboost/pkg/credentials"
	"github.com/platinummonkey/joboost/pkg/generation"
	"github.com/platinummonkey/joboost/pkg/ledger"
	"github.com/platinummonkey/joboost/pkg/middleware"
	"github.com/platinummonkey/joboost/pkg/observability"
	"github.com/platinummonkey/joboost/pkg/plans"
	"github.com/platinummonkey/joboost/pkg/recommendations"
	"github.com/platinummonkey/joboost/pkg/spontaneous"
	"github.com/platinummonkey/joboost/pkg/storage"
	"github.com/platinummonkey/joboost/pkg/storage/bolt"
	"github.com/platinummonkey/joboost/pkg/storage/postgres"
)

var version = "dev"

// store is what the server needs from a storage backend.
type store interface {
	ledger.Store
	billing.Store
	spontaneous.SendStore
	applications.Store
	Ping(ctx context.Context) error
	Close() error
}

func main() {
	migrate := flag.Bool("migrate", true, "Apply database migrations on startup (postgres backend)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", cfg.Observability.OTelServiceName)

	if err := run(cfg, logger, *migrate); err != nil {
		logger.WithError(err).Error("Server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger, migrate bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		cancel()
		return nil
	})

	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	if providers != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, providers, logger)
		})
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	catalog := plans.DefaultCatalog()
	if cfg.Payments.PlansFile != "" {
		catalog, err = plans.LoadFile(cfg.Payments.PlansFile)
		if err != nil {
			return err
		}
	}
	logger.WithFields(map[string]interface{}{
		"catalog_version": catalog.Version(),
		"plans":           len(catalog.List()),
	}).Info("Plan catalog loaded")

	st, health, err := openStore(ctx, cfg.Storage, logger, migrate)
	if err != nil {
		return err
	}
	shutdown.RegisterShutdownFunc(func(context.Context) error { return st.Close() })
	health.SetVersion(version)

	// Redis is optional: without it status polling is limited per instance.
	var statusLimiter middleware.Limiter
	limitConfig := &middleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimit.StatusPollPerMinute,
		WindowDuration:    time.Minute,
		BurstSize:         cfg.RateLimit.StatusPollBurst,
	}
	if cfg.Storage.RedisURL != "" {
		rc, err := storage.NewRedisClient(cfg.Storage)
		if err != nil {
			return err
		}
		shutdown.RegisterShutdownFunc(func(context.Context) error { return rc.Close() })
		health.AddCheck("redis", false, rc.Ping)
		statusLimiter = middleware.NewDistributedRateLimiter(rc.GetClient(), limitConfig, "ratelimit")
	} else {
		local := middleware.NewRateLimiter(limitConfig)
		local.StartCleanup(ctx, logger)
		statusLimiter = local
	}

	outbound := &http.Client{Timeout: cfg.Credentials.Timeout}
	if cfg.Observability.OTelEnabled {
		outbound.Transport = otelhttp.NewTransport(http.DefaultTransport)
	}

	creds := credentials.NewCache(
		credentials.WithMargin(cfg.Credentials.RefreshMargin),
		credentials.WithTimeout(cfg.Credentials.Timeout),
		credentials.WithLogger(logger),
		credentials.WithMetrics(metrics),
	)
	creds.Register(spontaneous.CredentialName, credentials.NewClientCredentials(credentials.ClientCredentialsConfig{
		Name:         spontaneous.CredentialName,
		ClientID:     cfg.Credentials.ClientID,
		ClientSecret: cfg.Credentials.ClientSecret,
		TokenURL:     cfg.Credentials.TokenURL,
		Scopes:       cfg.Credentials.Scopes,
		HTTPClient:   outbound,
	}))
	if cfg.Credentials.ClientID == "" {
		logger.Warn("France Travail credentials not configured, company search serves sample data")
	}

	if cfg.Payments.StripeSecretKey == "" {
		logger.Warn("Stripe secret key not configured, checkout will fail")
	}
	provider := billing.NewStripeProvider(billing.StripeConfig{
		SecretKey:     cfg.Payments.StripeSecretKey,
		WebhookSecret: cfg.Payments.StripeWebhookSecret,
		APIURL:        cfg.Payments.StripeAPIURL,
		Timeout:       cfg.Payments.Timeout,
	})

	l := ledger.New(st, logger)
	guard := ledger.NewGuard(l, logger, metrics)
	reconciler := billing.NewReconciler(st, provider, catalog, l, logger, metrics)

	// Bolt holds an exclusive file lock, so its sessions can only be swept
	// from this process.
	if cfg.SweepInProcess() {
		sweeper := billing.NewSweeper(reconciler, billing.SweeperConfig{
			Schedule:  cfg.Sweeper.Schedule,
			MinAge:    cfg.Sweeper.MinAge,
			BatchSize: cfg.Sweeper.BatchSize,
		}, logger)
		if err := sweeper.Start(ctx); err != nil {
			return err
		}
		shutdown.RegisterShutdownFunc(func(context.Context) error {
			sweeper.Stop()
			return nil
		})
	}

	apps := applications.NewService(st, logger)

	generator := generation.NewChatGenerator(generation.ChatConfig{
		URL:     cfg.Generator.URL,
		APIKey:  cfg.Generator.APIKey,
		Model:   cfg.Generator.Model,
		Timeout: cfg.Generator.Timeout,
	})
	if !generator.Configured() {
		logger.Warn("Generator API key not configured, document generation is disabled")
	}

	jobsClient := &http.Client{Timeout: cfg.Jobs.Timeout, Transport: outbound.Transport}
	recommender := recommendations.NewService(apps, []recommendations.Source{
		recommendations.NewJoobleClient(recommendations.JoobleConfig{
			APIKey:     cfg.Jobs.JoobleAPIKey,
			BaseURL:    cfg.Jobs.JoobleURL,
			HTTPClient: jobsClient,
		}, logger),
		recommendations.NewAdzunaClient(recommendations.AdzunaConfig{
			AppID:      cfg.Jobs.AdzunaAppID,
			AppKey:     cfg.Jobs.AdzunaAppKey,
			BaseURL:    cfg.Jobs.AdzunaURL,
			Country:    cfg.Jobs.AdzunaCountry,
			HTTPClient: jobsClient,
		}, logger),
	}, logger)
	if cfg.Jobs.JoobleAPIKey == "" {
		logger.Warn("Jooble API key not configured, recommendations serve sample offers")
	}

	finder := spontaneous.NewLaBonneBoiteClient(spontaneous.LaBonneBoiteConfig{
		BaseURL:    cfg.Credentials.CompanySearchURL,
		HTTPClient: outbound,
	}, creds.Credential(spontaneous.CredentialName), logger)

	server := api.NewServer(api.Options{
		Catalog:         catalog,
		Checkouts:       billing.NewCheckoutManager(catalog, provider, st, logger, metrics),
		Payments:        reconciler,
		Accounts:        l,
		Documents:       generation.NewService(generator, guard, apps, logger),
		Spontaneous:     spontaneous.NewService(finder, guard, st, logger),
		Applications:    apps,
		Recommendations: recommender,
		Verifier:        middleware.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		StatusLimiter:   statusLimiter,
		Logger:          logger,
		Metrics:         metrics,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
		Tracing:         cfg.Observability.OTelEnabled,
	})

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on their own port for probes and scraping
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, health)
	observability.RegisterMetricsEndpoint(healthMux, registry)
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown.AddServer(apiServer)
	shutdown.AddServer(healthServer)

	errCh := make(chan error, 2)
	for _, srv := range []*http.Server{apiServer, healthServer} {
		go func() {
			defer observability.RecoverPanic(logger, "http server "+srv.Addr)
			logger.WithField("addr", srv.Addr).Info("HTTP server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("server %s: %w", srv.Addr, err)
			}
		}()
	}

	go func() {
		errCh <- shutdown.WaitForShutdown()
	}()

	if err := <-errCh; err != nil {
		sctx, scancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer scancel()
		_ = shutdown.Shutdown(sctx)
		return err
	}
	return nil
}

// openStore opens the configured backend and returns it with a health checker
// probing it.
func openStore(ctx context.Context, cfg storage.Config, logger *observability.Logger, migrate bool) (store, *observability.HealthChecker, error) {
	switch cfg.Backend {
	case storage.BackendPostgres:
		conns, err := postgres.NewConnectionManager(postgres.ConnectionConfigFrom(cfg), logger)
		if err != nil {
			return nil, nil, err
		}
		if migrate {
			if err := postgres.Migrate(ctx, conns.Primary()); err != nil {
				conns.Close()
				return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
			}
		}
		conns.StartHealthCheckRoutine(ctx, 30*time.Second)
		st := postgres.NewStore(conns, logger)
		return st, observability.NewHealthChecker(conns.Primary(), nil), nil

	case storage.BackendBolt:
		st, err := bolt.Open(cfg.BoltPath, cfg.BoltTimeout)
		if err != nil {
			return nil, nil, err
		}
		logger.WithField("path", cfg.BoltPath).Info("Using bolt storage")
		health := observability.NewHealthChecker(nil, nil)
		health.AddCheck("bolt", true, st.Ping)
		return st, health, nil

	default:
		return nil, nil, fmt.Errorf("%w: %q", storage.ErrUnknownBackend, cfg.Backend)
	}
}
