package billing

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/joboost/pkg/observability"
	"github.com/platinummonkey/joboost/pkg/plans"
)

// MetadataSource tags provider sessions opened by this service.
const MetadataSource = "joboost"

// Checkout is the result of opening a checkout session.
type Checkout struct {
	SessionID     string `json:"session_id"`
	RedirectURL   string `json:"url"`
	TransactionID string `json:"transaction_id"`
}

// CheckoutManager opens provider checkout sessions and records the pending
// transaction that reconciliation later settles.
type CheckoutManager struct {
	catalog  *plans.Catalog
	provider PaymentProvider
	store    Store
	logger   *observability.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewCheckoutManager creates a checkout manager. metrics may be nil.
func NewCheckoutManager(catalog *plans.Catalog, provider PaymentProvider, store Store, logger *observability.Logger, metrics *observability.Metrics) *CheckoutManager {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &CheckoutManager{
		catalog:  catalog,
		provider: provider,
		store:    store,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// NewTransactionID returns "tx_" followed by 12 hex characters.
func NewTransactionID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "tx_" + id[:12]
}

// CreateCheckout opens a session for planID and persists the pending
// transaction before returning. returnBaseURL is the client origin the provider
// redirects back to.
func (m *CheckoutManager) CreateCheckout(ctx context.Context, userID, planID, returnBaseURL string) (*Checkout, error) {
	plan, err := m.catalog.Lookup(planID)
	if err != nil {
		m.metrics.RecordCheckout(planID, "invalid_plan")
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	if !plan.Purchasable {
		m.metrics.RecordCheckout(planID, "invalid_plan")
		return nil, fmt.Errorf("%w: %s is not purchasable", ErrInvalidPlan, planID)
	}

	base, err := normalizeBaseURL(returnBaseURL)
	if err != nil {
		return nil, err
	}

	sess, err := m.provider.CreateSession(ctx, CheckoutRequest{
		UserID:     userID,
		Plan:       plan,
		SuccessURL: base + "/payment/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  base + "/pricing",
		Metadata: map[string]string{
			"user_id": userID,
			"plan":    plan.ID,
			"source":  MetadataSource,
		},
	})
	if err != nil {
		m.metrics.RecordCheckout(planID, "provider_error")
		m.logger.WithError(err).WithField("plan", planID).Error("Checkout session creation failed")
		if errors.Is(err, ErrPaymentProvider) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrPaymentProvider, err)
	}

	tx := &Transaction{
		TransactionID: NewTransactionID(),
		SessionID:     sess.ID,
		UserID:        userID,
		PlanID:        plan.ID,
		AmountCents:   plan.PriceCents,
		Currency:      plan.Currency,
		Status:        StatusPending,
		PaymentStatus: PaymentInitiated,
		CreatedAt:     m.now().UTC(),
	}
	if err := m.store.CreateTransaction(ctx, tx); err != nil {
		m.metrics.RecordCheckout(planID, "store_error")
		m.logger.WithError(err).WithField("session_id", sess.ID).
			Error("Checkout session opened but transaction could not be recorded")
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}

	m.metrics.RecordCheckout(planID, "created")
	m.logger.WithFields(map[string]interface{}{
		"user_id":        userID,
		"plan":           plan.ID,
		"session_id":     sess.ID,
		"transaction_id": tx.TransactionID,
	}).Info("Checkout session created")

	return &Checkout{SessionID: sess.ID, RedirectURL: sess.URL, TransactionID: tx.TransactionID}, nil
}

func normalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidReturnURL, raw)
	}
	return raw, nil
}
