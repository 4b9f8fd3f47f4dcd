package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/joboost/pkg/billing"
	"github.com/platinummonkey/joboost/pkg/config"
	"github.com/platinummonkey/joboost/pkg/ledger"
	"github.com/platinummonkey/joboost/pkg/observability"
	"github.com/platinummonkey/joboost/pkg/plans"
	"github.com/platinummonkey/joboost/pkg/storage"
	"github.com/platinummonkey/joboost/pkg/storage/postgres"
)

var (
	runOnce   = flag.Bool("run-once", false, "Run a single sweep and exit")
	schedule  = flag.String("schedule", "", "Cron schedule overriding JOBOOST_SWEEPER_SCHEDULE")
	logLevel  = flag.String("log-level", "", "Log level overriding JOBOOST_LOG_LEVEL")
	batchSize = flag.Int("batch-size", 0, "Maximum transactions per sweep (0 uses configuration)")
)

type store interface {
	ledger.Store
	billing.Store
	Close() error
}

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *schedule != "" {
		cfg.Sweeper.Schedule = *schedule
	}
	if *batchSize > 0 {
		cfg.Sweeper.BatchSize = *batchSize
	}
	level := cfg.Observability.LogLevel.String()
	if *logLevel != "" {
		level = *logLevel
		cfg.Observability.LogLevel = observability.ParseLevel(level)
	}

	log := setupLogger(level)
	if err := cfg.ValidateStandaloneSweeper(); err != nil {
		log.WithError(err).Fatal("Refusing to start")
	}
	pkgLogger := observability.NewLogger(cfg.Observability.LogLevel, os.Stderr).
		WithField("service", "joboost-sweeper")

	catalog := plans.DefaultCatalog()
	if cfg.Payments.PlansFile != "" {
		catalog, err = plans.LoadFile(cfg.Payments.PlansFile)
		if err != nil {
			log.WithError(err).Fatal("Failed to load plan catalog")
		}
	}

	st, err := openStore(cfg.Storage, pkgLogger)
	if err != nil {
		log.WithError(err).Fatal("Failed to open storage")
	}
	defer st.Close()

	if cfg.Payments.StripeSecretKey == "" {
		log.Fatal("JOBOOST_STRIPE_SECRET_KEY is required to poll payment sessions")
	}
	provider := billing.NewStripeProvider(billing.StripeConfig{
		SecretKey:     cfg.Payments.StripeSecretKey,
		WebhookSecret: cfg.Payments.StripeWebhookSecret,
		APIURL:        cfg.Payments.StripeAPIURL,
		Timeout:       cfg.Payments.Timeout,
	})
	reconciler := billing.NewReconciler(st, provider, catalog, ledger.New(st, pkgLogger), pkgLogger, nil)

	sweeper := billing.NewSweeper(reconciler, billing.SweeperConfig{
		Schedule:  cfg.Sweeper.Schedule,
		MinAge:    cfg.Sweeper.MinAge,
		BatchSize: cfg.Sweeper.BatchSize,
	}, pkgLogger)

	if *runOnce {
		start := time.Now()
		settled, err := sweeper.RunOnce(context.Background())
		entry := log.WithFields(logrus.Fields{
			"settled":  settled,
			"duration": time.Since(start).String(),
		})
		if err != nil {
			entry.WithError(err).Fatal("Sweep failed")
		}
		entry.Info("Sweep completed")
		return
	}

	if err := sweeper.Start(context.Background()); err != nil {
		log.WithError(err).Fatal("Failed to schedule sweeps")
	}
	log.WithFields(logrus.Fields{
		"schedule": cfg.Sweeper.Schedule,
		"min_age":  cfg.Sweeper.MinAge.String(),
		"batch":    cfg.Sweeper.BatchSize,
	}).Info("Joboost sweeper started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down sweeper...")
	sweeper.Stop()
	log.Info("Sweeper stopped")
}

func setupLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	return logger
}

func openStore(cfg storage.Config, logger *observability.Logger) (store, error) {
	switch cfg.Backend {
	case storage.BackendPostgres:
		conns, err := postgres.NewConnectionManager(postgres.ConnectionConfigFrom(cfg), logger)
		if err != nil {
			return nil, err
		}
		return postgres.NewStore(conns, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", storage.ErrUnknownBackend, cfg.Backend)
	}
}
