package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/joboost/pkg/observability"
)

// SweeperConfig schedules Reconciler.Sweep.
type SweeperConfig struct {
	// Schedule is a cron spec or descriptor such as "@every 5m".
	Schedule  string
	MinAge    time.Duration
	BatchSize int
}

// Sweeper runs Reconciler.Sweep on a cron schedule. Runs never overlap.
type Sweeper struct {
	reconciler *Reconciler
	config     SweeperConfig
	logger     *observability.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// NewSweeper creates a sweeper. It does nothing until Start.
func NewSweeper(r *Reconciler, cfg SweeperConfig, logger *observability.Logger) *Sweeper {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Sweeper{reconciler: r, config: cfg, logger: logger}
}

// RunOnce sweeps immediately and returns the number of settled transactions.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	defer observability.RecoverPanic(s.logger, "payment sweeper")

	start := time.Now()
	settled, err := s.reconciler.Sweep(ctx, s.config.MinAge, s.config.BatchSize)
	logger := s.logger.WithFields(map[string]interface{}{
		"settled":  settled,
		"duration": time.Since(start).String(),
	})
	if err != nil {
		logger.WithError(err).Error("Sweep failed")
		return settled, err
	}
	logger.Debug("Sweep completed")
	return settled, nil
}

// Start schedules sweeps until ctx is cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("sweeper already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.config.Schedule, func() { _, _ = s.RunOnce(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("invalid sweep schedule %q: %w", s.config.Schedule, err)
	}
	c.Start()
	s.cron, s.cancel = c, cancel

	s.logger.WithFields(map[string]interface{}{
		"schedule": s.config.Schedule,
		"min_age":  s.config.MinAge.String(),
		"batch":    s.config.BatchSize,
	}).Info("Payment sweeper started")
	return nil
}

// Stop cancels the running sweep, if any, and waits for it to return.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	cancel()
	<-c.Stop().Done()
}
