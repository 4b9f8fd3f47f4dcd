package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeConfig configures the Stripe payment provider.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	// APIURL overrides the Stripe API base URL, for tests and proxies.
	APIURL  string
	Timeout time.Duration
}

// StripeProvider implements PaymentProvider with Stripe Checkout.
type StripeProvider struct {
	sessions      *session.Client
	webhookSecret string
}

// NewStripeProvider creates a Stripe provider with its own backend, so that
// no package-level stripe.Key is needed.
func NewStripeProvider(cfg StripeConfig) *StripeProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(cfg.APIURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	return &StripeProvider{
		sessions:      &session.Client{B: backend, Key: cfg.SecretKey},
		webhookSecret: cfg.WebhookSecret,
	}
}

// CreateSession opens a one-off payment checkout session for the plan price.
func (p *StripeProvider) CreateSession(ctx context.Context, req CheckoutRequest) (*ProviderSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(req.Plan.Currency),
					UnitAmount: stripe.Int64(req.Plan.PriceCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Plan.Name),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		ClientReferenceID: stripe.String(req.UserID),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	sess, err := p.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPaymentProvider, describeStripeError(err))
	}
	return toProviderSession(sess), nil
}

// GetSession fetches the current state of a checkout session.
func (p *StripeProvider) GetSession(ctx context.Context, sessionID string) (*ProviderSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := p.sessions.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: %s", describeStripeError(err))
	}
	return toProviderSession(sess), nil
}

// ParseEvent verifies the Stripe-Signature header and maps checkout events.
func (p *StripeProvider) ParseEvent(payload []byte, signature string) (*ProviderEvent, error) {
	if p.webhookSecret == "" {
		return nil, errors.New("webhook secret not configured")
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, err
	}

	out := &ProviderEvent{ID: event.ID, Type: string(event.Type)}

	var reported ReportedStatus
	switch string(event.Type) {
	case "checkout.session.completed":
		reported = "" // decided from the session below
	case "checkout.session.async_payment_succeeded":
		reported = ReportedPaid
	case "checkout.session.async_payment_failed", "checkout.session.expired":
		reported = ReportedFailed
	default:
		return out, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("%w: checkout session payload: %v", ErrMalformedEvent, err)
	}
	if reported == "" {
		reported = sessionStatus(&sess)
	}

	out.SessionID = sess.ID
	out.Status = reported
	out.Relevant = sess.ID != ""
	return out, nil
}

func toProviderSession(s *stripe.CheckoutSession) *ProviderSession {
	return &ProviderSession{
		ID:            s.ID,
		URL:           s.URL,
		Status:        sessionStatus(s),
		RawStatus:     string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		AmountTotal:   s.AmountTotal,
		Currency:      string(s.Currency),
		Metadata:      s.Metadata,
	}
}

func sessionStatus(s *stripe.CheckoutSession) ReportedStatus {
	switch {
	case s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		s.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		return ReportedPaid
	case s.Status == stripe.CheckoutSessionStatusExpired:
		return ReportedFailed
	default:
		return ReportedOpen
	}
}

func describeStripeError(err error) string {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return fmt.Sprintf("%d %s: %s", stripeErr.HTTPStatusCode, stripeErr.Type, stripeErr.Msg)
	}
	return err.Error()
}
