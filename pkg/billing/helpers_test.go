package billing_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/joboost/pkg/billing"
	"github.com/platinummonkey/joboost/pkg/ledger"
	"github.com/platinummonkey/joboost/pkg/observability"
	"github.com/platinummonkey/joboost/pkg/plans"
	"github.com/platinummonkey/joboost/pkg/storage/bolt"
)

const validSignature = "t=1,v1=valid"

// fakeProvider is an in-memory PaymentProvider. Webhook payloads are JSON
// encoded fakeEvent values and verify only with validSignature.
type fakeProvider struct {
	mu        sync.Mutex
	sessions  map[string]*billing.ProviderSession
	requests  []billing.CheckoutRequest
	seq       int
	createErr error
	getErr    error
	getCalls  int
}

type fakeEvent struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{sessions: make(map[string]*billing.ProviderSession)}
}

func (p *fakeProvider) CreateSession(ctx context.Context, req billing.CheckoutRequest) (*billing.ProviderSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.seq++
	p.requests = append(p.requests, req)
	id := fmt.Sprintf("cs_test_%d", p.seq)
	sess := &billing.ProviderSession{
		ID:            id,
		URL:           "https://checkout.stripe.test/pay/" + id,
		Status:        billing.ReportedOpen,
		RawStatus:     "open",
		PaymentStatus: "unpaid",
		AmountTotal:   req.Plan.PriceCents,
		Currency:      req.Plan.Currency,
		Metadata:      req.Metadata,
	}
	p.sessions[id] = sess
	cp := *sess
	return &cp, nil
}

func (p *fakeProvider) GetSession(ctx context.Context, sessionID string) (*billing.ProviderSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.getCalls++
	if p.getErr != nil {
		return nil, p.getErr
	}
	sess, ok := p.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("no such checkout.session: %s", sessionID)
	}
	cp := *sess
	return &cp, nil
}

func (p *fakeProvider) ParseEvent(payload []byte, signature string) (*billing.ProviderEvent, error) {
	if signature != validSignature {
		return nil, errors.New("no signatures found matching the expected signature for payload")
	}
	var ev fakeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", billing.ErrMalformedEvent, err)
	}
	return &billing.ProviderEvent{
		ID:        ev.ID,
		Type:      ev.Type,
		SessionID: ev.SessionID,
		Status:    billing.ReportedStatus(ev.Status),
		Relevant:  strings.HasPrefix(ev.Type, "checkout.session.") && ev.SessionID != "",
	}, nil
}

// pay marks the session paid on the provider side.
func (p *fakeProvider) pay(sessionID string) {
	p.setStatus(sessionID, billing.ReportedPaid, "complete", "paid")
}

// expire marks the session expired on the provider side.
func (p *fakeProvider) expire(sessionID string) {
	p.setStatus(sessionID, billing.ReportedFailed, "expired", "unpaid")
}

func (p *fakeProvider) setStatus(sessionID string, status billing.ReportedStatus, raw, payment string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sess := p.sessions[sessionID]
	sess.Status = status
	sess.RawStatus = raw
	sess.PaymentStatus = payment
}

func webhookPayload(t *testing.T, eventID, eventType, sessionID string, status billing.ReportedStatus) []byte {
	t.Helper()
	data, err := json.Marshal(fakeEvent{ID: eventID, Type: eventType, SessionID: sessionID, Status: string(status)})
	require.NoError(t, err)
	return data
}

type harness struct {
	store      *bolt.Store
	provider   *fakeProvider
	catalog    *plans.Catalog
	ledger     *ledger.Ledger
	guard      *ledger.Guard
	checkout   *billing.CheckoutManager
	reconciler *billing.Reconciler
	metrics    *observability.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := bolt.Open(filepath.Join(t.TempDir(), "billing.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := observability.NewNopLogger()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	catalog := plans.DefaultCatalog()
	provider := newFakeProvider()
	l := ledger.New(store, logger)

	return &harness{
		store:      store,
		provider:   provider,
		catalog:    catalog,
		ledger:     l,
		guard:      ledger.NewGuard(l, logger, metrics),
		checkout:   billing.NewCheckoutManager(catalog, provider, store, logger, metrics),
		reconciler: billing.NewReconciler(store, provider, catalog, l, logger, metrics),
		metrics:    metrics,
	}
}

// register creates the user's free balance.
func (h *harness) register(t *testing.T, userID string) {
	t.Helper()
	_, err := h.ledger.Register(context.Background(), userID)
	require.NoError(t, err)
}

// buy opens a checkout for planID and returns the session id.
func (h *harness) buy(t *testing.T, userID, planID string) string {
	t.Helper()
	c, err := h.checkout.CreateCheckout(context.Background(), userID, planID, "https://app.joboost.test")
	require.NoError(t, err)
	return c.SessionID
}

func (h *harness) balance(t *testing.T, userID string) *ledger.Balance {
	t.Helper()
	b, err := h.ledger.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return b
}
