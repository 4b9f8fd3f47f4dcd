package billing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/joboost/pkg/billing"
	"github.com/platinummonkey/joboost/pkg/plans"
)

func TestCreateCheckout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	c, err := h.checkout.CreateCheckout(ctx, "u1", plans.PlanProMonthly, "https://app.joboost.test/")
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", c.SessionID)
	assert.Equal(t, "https://checkout.stripe.test/pay/cs_test_1", c.RedirectURL)
	assert.Regexp(t, `^tx_[0-9a-f]{12}$`, c.TransactionID)

	require.Len(t, h.provider.requests, 1)
	req := h.provider.requests[0]
	assert.Equal(t, "https://app.joboost.test/payment/success?session_id={CHECKOUT_SESSION_ID}", req.SuccessURL)
	assert.Equal(t, "https://app.joboost.test/pricing", req.CancelURL)
	assert.Equal(t, int64(999), req.Plan.PriceCents)
	assert.Equal(t, map[string]string{"user_id": "u1", "plan": "pro_monthly", "source": billing.MetadataSource}, req.Metadata)

	tx, err := h.store.GetTransaction(ctx, c.SessionID)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusPending, tx.Status)
	assert.Equal(t, billing.PaymentInitiated, tx.PaymentStatus)
	assert.Equal(t, "u1", tx.UserID)
	assert.Equal(t, int64(999), tx.AmountCents)
	assert.Equal(t, "eur", tx.Currency)
	assert.Nil(t, tx.CompletedAt)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.CheckoutsTotal.WithLabelValues("pro_monthly", "created")))
}

func TestCreateCheckout_RejectedRequestsLeaveNoTransaction(t *testing.T) {
	tests := []struct {
		name    string
		plan    string
		baseURL string
		fail    error
		wantErr error
	}{
		{name: "unknown plan", plan: "platinum", baseURL: "https://app.joboost.test", wantErr: billing.ErrInvalidPlan},
		{name: "free plan", plan: plans.PlanFree, baseURL: "https://app.joboost.test", wantErr: billing.ErrInvalidPlan},
		{name: "relative return url", plan: plans.PlanProMonthly, baseURL: "/pricing", wantErr: billing.ErrInvalidReturnURL},
		{name: "non-http return url", plan: plans.PlanProMonthly, baseURL: "javascript:alert(1)", wantErr: billing.ErrInvalidReturnURL},
		{name: "provider failure", plan: plans.PlanProMonthly, baseURL: "https://app.joboost.test", fail: errors.New("api unreachable"), wantErr: billing.ErrPaymentProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.provider.createErr = tt.fail

			_, err := h.checkout.CreateCheckout(context.Background(), "u1", tt.plan, tt.baseURL)
			assert.ErrorIs(t, err, tt.wantErr)

			pending, err := h.store.ListPending(context.Background(), farFuture, 0)
			require.NoError(t, err)
			assert.Empty(t, pending)
		})
	}
}

func TestNewTransactionID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := billing.NewTransactionID()
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}
