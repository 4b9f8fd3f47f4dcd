package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/joboost/pkg/ledger"
	"github.com/platinummonkey/joboost/pkg/observability"
	"github.com/platinummonkey/joboost/pkg/plans"
)

// webhookReplayWindow is how many recently processed event ids are remembered.
const webhookReplayWindow = 4096

// Reconciler settles pending transactions from either notification path.
// Every path funnels into Reconcile, whose store update is guarded by the
// pending status, so a payment is granted at most once no matter how many
// times or in what order it is reported.
type Reconciler struct {
	store    Store
	provider PaymentProvider
	catalog  *plans.Catalog
	ledger   *ledger.Ledger
	logger   *observability.Logger
	metrics  *observability.Metrics
	tracer   trace.Tracer
	seen     *lru.Cache[string, struct{}]
	now      func() time.Time
}

// NewReconciler creates a reconciler. metrics may be nil.
func NewReconciler(store Store, provider PaymentProvider, catalog *plans.Catalog, l *ledger.Ledger, logger *observability.Logger, metrics *observability.Metrics) *Reconciler {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	seen, err := lru.New[string, struct{}](webhookReplayWindow)
	if err != nil {
		panic(fmt.Sprintf("webhook replay cache: %v", err))
	}
	return &Reconciler{
		store:    store,
		provider: provider,
		catalog:  catalog,
		ledger:   l,
		logger:   logger,
		metrics:  metrics,
		tracer:   observability.Tracer(),
		seen:     seen,
		now:      time.Now,
	}
}

// Reconcile applies a reported provider status to the local transaction.
func (r *Reconciler) Reconcile(ctx context.Context, source Source, sessionID string, reported ReportedStatus) (*Result, error) {
	ctx, span := r.tracer.Start(ctx, "billing.Reconcile", trace.WithAttributes(
		attribute.String("billing.source", string(source)),
		attribute.String("billing.session_id", sessionID),
		attribute.String("billing.reported", string(reported)),
	))
	defer span.End()

	start := time.Now()
	res, err := r.reconcile(ctx, source, sessionID, reported)
	outcome := "error"
	if err == nil {
		outcome = string(res.Outcome)
	} else {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("billing.outcome", outcome))
	r.metrics.RecordReconciliation(string(source), outcome, time.Since(start))
	return res, err
}

func (r *Reconciler) reconcile(ctx context.Context, source Source, sessionID string, reported ReportedStatus) (*Result, error) {
	logger := observability.LoggerWithTrace(ctx, r.logger).WithFields(map[string]interface{}{
		"source":     source,
		"session_id": sessionID,
		"reported":   reported,
	})

	current, err := r.store.GetTransaction(ctx, sessionID)
	if errors.Is(err, ErrTransactionNotFound) {
		logger.Warn("Reconciliation for unknown session ignored")
		return &Result{Outcome: OutcomeIgnored}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	// Failed is final as well: the provider never pays an expired session.
	if current.Terminal() {
		logger.WithField("status", current.Status).Info("Transaction already settled, nothing to do")
		return &Result{Outcome: OutcomeNoop, Transaction: current}, nil
	}

	switch reported {
	case ReportedPaid:
		return r.settlePaid(ctx, logger, sessionID)
	case ReportedFailed:
		return r.settleFailed(ctx, logger, sessionID)
	default:
		return &Result{Outcome: OutcomeNoop, Transaction: current}, nil
	}
}

func (r *Reconciler) settlePaid(ctx context.Context, logger *observability.Logger, sessionID string) (*Result, error) {
	var balance *ledger.Balance
	tx, applied, err := r.store.Settle(ctx, sessionID,
		Settlement{Status: StatusCompleted, PaymentStatus: PaymentPaid, At: r.now().UTC()},
		func(ctx context.Context, tx *Transaction, w ledger.GrantWriter) error {
			plan, err := r.catalog.Lookup(tx.PlanID)
			if err != nil {
				return err
			}
			balance, err = r.ledger.Grant(ctx, w, tx.UserID, plan)
			return err
		})
	if errors.Is(err, ErrTransactionNotFound) {
		return &Result{Outcome: OutcomeIgnored}, nil
	}
	if err != nil {
		logger.WithError(err).Error("Failed to settle paid transaction")
		return nil, fmt.Errorf("failed to settle transaction: %w", err)
	}
	if !applied {
		logger.Info("Transaction settled concurrently, nothing to do")
		return &Result{Outcome: OutcomeNoop, Transaction: tx}, nil
	}

	logger.WithFields(map[string]interface{}{
		"user_id": tx.UserID,
		"plan":    tx.PlanID,
	}).Info("Payment completed and credits granted")
	return &Result{Outcome: OutcomeGranted, Transaction: tx, Balance: balance}, nil
}

func (r *Reconciler) settleFailed(ctx context.Context, logger *observability.Logger, sessionID string) (*Result, error) {
	tx, applied, err := r.store.Settle(ctx, sessionID,
		Settlement{Status: StatusFailed, PaymentStatus: PaymentUnpaid, At: r.now().UTC()}, nil)
	if errors.Is(err, ErrTransactionNotFound) {
		return &Result{Outcome: OutcomeIgnored}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to settle transaction: %w", err)
	}
	if !applied {
		return &Result{Outcome: OutcomeNoop, Transaction: tx}, nil
	}
	logger.WithField("user_id", tx.UserID).Info("Payment failed, transaction closed")
	return &Result{Outcome: OutcomeFailed, Transaction: tx}, nil
}

// StatusSnapshot is what the pull path reports back to the client.
type StatusSnapshot struct {
	Status        string  `json:"status"`
	PaymentStatus string  `json:"payment_status"`
	AmountTotal   int64   `json:"amount_total"`
	Currency      string  `json:"currency"`
	Outcome       Outcome `json:"-"`
}

// PollStatus queries the provider for a session the user opened and
// reconciles the result. Sessions of other users are reported as not found.
func (r *Reconciler) PollStatus(ctx context.Context, userID, sessionID string) (*StatusSnapshot, error) {
	tx, err := r.store.GetTransaction(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if tx.UserID != userID {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, sessionID)
	}

	sess, res, err := r.refresh(ctx, SourcePoll, sessionID)
	if err != nil {
		return nil, err
	}
	return &StatusSnapshot{
		Status:        sess.RawStatus,
		PaymentStatus: sess.PaymentStatus,
		AmountTotal:   sess.AmountTotal,
		Currency:      sess.Currency,
		Outcome:       res.Outcome,
	}, nil
}

// Refresh re-polls the provider for a session and reconciles it.
func (r *Reconciler) Refresh(ctx context.Context, sessionID string) (*Result, error) {
	_, res, err := r.refresh(ctx, SourceSweeper, sessionID)
	return res, err
}

func (r *Reconciler) refresh(ctx context.Context, source Source, sessionID string) (*ProviderSession, *Result, error) {
	sess, err := r.provider.GetSession(ctx, sessionID)
	if err != nil {
		r.metrics.RecordReconciliation(string(source), "provider_error", 0)
		return nil, nil, fmt.Errorf("%w: %v", ErrReconciliation, err)
	}
	res, err := r.Reconcile(ctx, source, sessionID, sess.Status)
	if err != nil {
		return nil, nil, err
	}
	return sess, res, nil
}

// Sweep re-polls pending transactions older than minAge. It returns how many
// were settled. Individual failures are logged and do not stop the sweep.
func (r *Reconciler) Sweep(ctx context.Context, minAge time.Duration, limit int) (int, error) {
	pending, err := r.store.ListPending(ctx, r.now().Add(-minAge), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	r.metrics.SetPendingTransactions(len(pending))

	settled := 0
	for _, tx := range pending {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		res, err := r.Refresh(ctx, tx.SessionID)
		if err != nil {
			r.logger.WithError(err).WithField("session_id", tx.SessionID).Warn("Sweep could not refresh transaction")
			continue
		}
		if res.Outcome == OutcomeGranted || res.Outcome == OutcomeFailed {
			settled++
		}
	}
	return settled, nil
}

// WebhookAck is the body returned to the provider.
type WebhookAck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

const (
	AckProcessed = "processed"
	AckError     = "error"
)

// HandleWebhook verifies and applies a provider event. Only signature
// failures are returned as errors; every other failure is logged and
// acknowledged so the provider does not retry into the same failure.
func (r *Reconciler) HandleWebhook(ctx context.Context, payload []byte, signature string) (WebhookAck, error) {
	event, err := r.provider.ParseEvent(payload, signature)
	if errors.Is(err, ErrMalformedEvent) {
		r.metrics.RecordWebhookEvent("unknown", "malformed")
		r.logger.WithError(err).Error("Webhook payload could not be decoded")
		return WebhookAck{Status: AckError, Message: "malformed event"}, nil
	}
	if err != nil {
		r.metrics.RecordWebhookEvent("unknown", "invalid_signature")
		r.logger.WithError(err).Warn("Webhook rejected")
		return WebhookAck{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	logger := r.logger.WithFields(map[string]interface{}{
		"event_id":   event.ID,
		"event_type": event.Type,
	})

	if _, dup := r.seen.Get(event.ID); dup {
		r.metrics.RecordWebhookEvent(event.Type, "duplicate")
		logger.Debug("Webhook event already processed")
		return WebhookAck{Status: AckProcessed}, nil
	}
	if !event.Relevant {
		r.metrics.RecordWebhookEvent(event.Type, "skipped")
		return WebhookAck{Status: AckProcessed}, nil
	}

	res, err := r.Reconcile(ctx, SourceWebhook, event.SessionID, event.Status)
	if err != nil {
		r.metrics.RecordWebhookEvent(event.Type, "error")
		logger.WithError(err).Error("Webhook reconciliation failed")
		return WebhookAck{Status: AckError, Message: "reconciliation failed"}, nil
	}

	r.seen.Add(event.ID, struct{}{})
	r.metrics.RecordWebhookEvent(event.Type, string(res.Outcome))
	return WebhookAck{Status: AckProcessed}, nil
}
