package billing_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/platinummonkey/joboost/pkg/billing"
	"github.com/platinummonkey/joboost/pkg/plans"
)

const testWebhookSecret = "whsec_test_secret"

// newFakeStripe serves the two checkout session endpoints the provider uses.
func newFakeStripe(t *testing.T, session map[string]interface{}) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/checkout/sessions":
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "payment", r.PostForm.Get("mode"))
			assert.Equal(t, "u1", r.PostForm.Get("client_reference_id"))
			assert.Equal(t, "999", r.PostForm.Get("line_items[0][price_data][unit_amount]"))
			assert.Equal(t, "eur", r.PostForm.Get("line_items[0][price_data][currency]"))
			assert.Equal(t, "Pro Mensuel", r.PostForm.Get("line_items[0][price_data][product_data][name]"))
			assert.Equal(t, "joboost", r.PostForm.Get("metadata[source]"))
			assert.Equal(t, "pro_monthly", r.PostForm.Get("metadata[plan]"))
			_ = json.NewEncoder(w).Encode(session)
		case r.Method == http.MethodGet && r.URL.Path == "/v1/checkout/sessions/cs_test_a1":
			_ = json.NewEncoder(w).Encode(session)
		case r.Method == http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"No such checkout.session"}}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"unexpected request"}}`))
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestStripeProvider(apiURL string) *billing.StripeProvider {
	return billing.NewStripeProvider(billing.StripeConfig{
		SecretKey:     "sk_test_123",
		WebhookSecret: testWebhookSecret,
		APIURL:        apiURL,
		Timeout:       5 * time.Second,
	})
}

func TestStripeProvider_CreateAndGetSession(t *testing.T) {
	server := newFakeStripe(t, map[string]interface{}{
		"id":             "cs_test_a1",
		"object":         "checkout.session",
		"url":            "https://checkout.stripe.com/c/pay/cs_test_a1",
		"status":         "complete",
		"payment_status": "paid",
		"amount_total":   999,
		"currency":       "eur",
		"metadata":       map[string]string{"user_id": "u1", "plan": "pro_monthly"},
	})
	provider := newTestStripeProvider(server.URL)
	plan, err := plans.DefaultCatalog().Lookup(plans.PlanProMonthly)
	require.NoError(t, err)

	sess, err := provider.CreateSession(context.Background(), billing.CheckoutRequest{
		UserID:     "u1",
		Plan:       plan,
		SuccessURL: "https://app.joboost.test/payment/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  "https://app.joboost.test/pricing",
		Metadata:   map[string]string{"user_id": "u1", "plan": plan.ID, "source": billing.MetadataSource},
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_a1", sess.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_a1", sess.URL)

	got, err := provider.GetSession(context.Background(), "cs_test_a1")
	require.NoError(t, err)
	assert.Equal(t, billing.ReportedPaid, got.Status)
	assert.Equal(t, "complete", got.RawStatus)
	assert.Equal(t, "paid", got.PaymentStatus)
	assert.Equal(t, int64(999), got.AmountTotal)
	assert.Equal(t, "eur", got.Currency)
	assert.Equal(t, "u1", got.Metadata["user_id"])

	_, err = provider.GetSession(context.Background(), "cs_missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestStripeProvider_CreateSessionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"Invalid API Key provided"}}`))
	}))
	defer server.Close()

	plan, err := plans.DefaultCatalog().Lookup(plans.PlanProMonthly)
	require.NoError(t, err)
	_, err = newTestStripeProvider(server.URL).CreateSession(context.Background(), billing.CheckoutRequest{UserID: "u1", Plan: plan})
	assert.ErrorIs(t, err, billing.ErrPaymentProvider)
	assert.Contains(t, err.Error(), "Invalid API Key")
}

func signedEvent(t *testing.T, eventType string, object map[string]interface{}) (payload []byte, header string) {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"id":          "evt_test_1",
		"object":      "event",
		"type":        eventType,
		"api_version": "2020-08-27",
		"data":        map[string]interface{}{"object": object},
	})
	require.NoError(t, err)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   body,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Payload, signed.Header
}

func TestStripeProvider_ParseEvent(t *testing.T) {
	provider := newTestStripeProvider("")

	tests := []struct {
		name         string
		eventType    string
		object       map[string]interface{}
		wantRelevant bool
		wantStatus   billing.ReportedStatus
	}{
		{
			name:         "completed and paid",
			eventType:    "checkout.session.completed",
			object:       map[string]interface{}{"id": "cs_1", "object": "checkout.session", "status": "complete", "payment_status": "paid"},
			wantRelevant: true,
			wantStatus:   billing.ReportedPaid,
		},
		{
			name:         "completed awaiting async payment",
			eventType:    "checkout.session.completed",
			object:       map[string]interface{}{"id": "cs_1", "object": "checkout.session", "status": "complete", "payment_status": "unpaid"},
			wantRelevant: true,
			wantStatus:   billing.ReportedOpen,
		},
		{
			name:         "async payment succeeded",
			eventType:    "checkout.session.async_payment_succeeded",
			object:       map[string]interface{}{"id": "cs_1", "object": "checkout.session"},
			wantRelevant: true,
			wantStatus:   billing.ReportedPaid,
		},
		{
			name:         "expired",
			eventType:    "checkout.session.expired",
			object:       map[string]interface{}{"id": "cs_1", "object": "checkout.session", "status": "expired"},
			wantRelevant: true,
			wantStatus:   billing.ReportedFailed,
		},
		{
			name:      "unrelated event",
			eventType: "customer.created",
			object:    map[string]interface{}{"id": "cus_1", "object": "customer"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, header := signedEvent(t, tt.eventType, tt.object)
			ev, err := provider.ParseEvent(payload, header)
			require.NoError(t, err)
			assert.Equal(t, "evt_test_1", ev.ID)
			assert.Equal(t, tt.eventType, ev.Type)
			assert.Equal(t, tt.wantRelevant, ev.Relevant)
			if tt.wantRelevant {
				assert.Equal(t, "cs_1", ev.SessionID)
				assert.Equal(t, tt.wantStatus, ev.Status)
			}
		})
	}
}

func TestStripeProvider_ParseEventRejectsBadSignature(t *testing.T) {
	provider := newTestStripeProvider("")
	payload, header := signedEvent(t, "checkout.session.completed",
		map[string]interface{}{"id": "cs_1", "object": "checkout.session", "payment_status": "paid"})

	_, err := provider.ParseEvent(payload, strings.Replace(header, "v1=", "v1=00", 1))
	assert.Error(t, err)

	tampered := []byte(strings.Replace(string(payload), "cs_1", "cs_2", 1))
	_, err = provider.ParseEvent(tampered, header)
	assert.Error(t, err)

	unconfigured := billing.NewStripeProvider(billing.StripeConfig{SecretKey: "sk_test_123"})
	_, err = unconfigured.ParseEvent(payload, header)
	assert.Error(t, err)
}

func TestStripeProvider_ParseEventMalformedSession(t *testing.T) {
	provider := newTestStripeProvider("")
	payload, header := signedEvent(t, "checkout.session.completed",
		map[string]interface{}{"id": "cs_1", "object": "checkout.session", "amount_total": "lots"})

	_, err := provider.ParseEvent(payload, header)
	assert.ErrorIs(t, err, billing.ErrMalformedEvent)
}
