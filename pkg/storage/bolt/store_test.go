package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/joboost/pkg/billing"
	"github.com/platinummonkey/joboost/pkg/ledger"
	"github.com/platinummonkey/joboost/pkg/plans"
	"github.com/platinummonkey/joboost/pkg/spontaneous"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "data", "joboost.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func pendingTx(sessionID, userID, planID string, created time.Time) *billing.Transaction {
	return &billing.Transaction{
		TransactionID: billing.NewTransactionID(),
		SessionID:     sessionID,
		UserID:        userID,
		PlanID:        planID,
		AmountCents:   999,
		Currency:      "eur",
		Status:        billing.StatusPending,
		PaymentStatus: billing.PaymentInitiated,
		CreatedAt:     created,
	}
}

func TestStore_BalanceLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.GetBalance(ctx, "u1")
	assert.ErrorIs(t, err, ledger.ErrBalanceNotFound)

	b, err := store.CreateBalance(ctx, "u1", ledger.FreeEntitlement)
	require.NoError(t, err)
	assert.Equal(t, plans.TierFree, b.Tier)

	b, err = store.CreateBalance(ctx, "u1", ledger.Entitlement{Tier: plans.TierUltra, CV: 9})
	require.NoError(t, err)
	assert.Equal(t, plans.TierFree, b.Tier, "existing record is kept")

	b, err = store.Debit(ctx, "u1", ledger.PoolSpontaneous, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), b.Spontaneous)

	_, err = store.Debit(ctx, "u1", ledger.PoolSpontaneous, 3)
	var insufficient *ledger.InsufficientCreditError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(2), insufficient.Available)

	b, err = store.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), b.Spontaneous, "refused debit leaves the balance untouched")

	_, err = store.Debit(ctx, "ghost", ledger.PoolCV, 1)
	assert.ErrorIs(t, err, ledger.ErrBalanceNotFound)
}

func TestStore_UltraDebitIsExempt(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.CreateBalance(ctx, "u1", ledger.Entitlement{Tier: plans.TierUltra, CV: 0})
	require.NoError(t, err)
	b, err := store.Debit(ctx, "u1", ledger.PoolCV, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), b.CV)
}

func TestStore_ConcurrentDebits(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	_, err := store.CreateBalance(ctx, "u1", ledger.FreeEntitlement)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Debit(ctx, "u1", ledger.PoolSpontaneous, 1); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, granted)
	b, err := store.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), b.Spontaneous)
}

func TestStore_Transactions(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateTransaction(ctx, pendingTx("cs_b", "u1", plans.PlanProMonthly, base.Add(time.Minute))))
	require.NoError(t, store.CreateTransaction(ctx, pendingTx("cs_a", "u1", plans.PlanProMonthly, base)))
	require.NoError(t, store.CreateTransaction(ctx, pendingTx("cs_new", "u2", plans.PlanProMonthly, base.Add(time.Hour))))

	err := store.CreateTransaction(ctx, pendingTx("cs_a", "u1", plans.PlanProMonthly, base))
	assert.ErrorIs(t, err, billing.ErrDuplicateTransaction)

	_, err = store.GetTransaction(ctx, "cs_missing")
	assert.ErrorIs(t, err, billing.ErrTransactionNotFound)

	pending, err := store.ListPending(ctx, base.Add(30*time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "cs_a", pending[0].SessionID, "oldest first")
	assert.Equal(t, "cs_b", pending[1].SessionID)

	pending, err = store.ListPending(ctx, base.Add(2*time.Hour), 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "cs_a", pending[0].SessionID)
}

func TestStore_Settle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	l := ledger.New(store, nil)
	plan, err := plans.DefaultCatalog().Lookup(plans.PlanProMonthly)
	require.NoError(t, err)

	require.NoError(t, store.CreateTransaction(ctx, pendingTx("cs_1", "u1", plan.ID, now.Add(-time.Minute))))

	grant := func(ctx context.Context, tx *billing.Transaction, w ledger.GrantWriter) error {
		_, err := l.Grant(ctx, w, tx.UserID, plan)
		return err
	}
	paid := billing.Settlement{Status: billing.StatusCompleted, PaymentStatus: billing.PaymentPaid, At: now}

	tx, applied, err := store.Settle(ctx, "cs_1", paid, grant)
	require.NoError(t, err)
	assert.True(t, applied)
	require.NotNil(t, tx.CompletedAt)
	assert.True(t, now.Equal(*tx.CompletedAt))

	b, err := store.GetBalance(ctx, "u1")
	require.NoError(t, err, "grant creates the record when absent")
	assert.Equal(t, plans.TierPro, b.Tier)
	assert.Equal(t, int64(500), b.Spontaneous)

	_, err = store.Debit(ctx, "u1", ledger.PoolCV, 10)
	require.NoError(t, err)

	tx, applied, err = store.Settle(ctx, "cs_1", paid, grant)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, billing.StatusCompleted, tx.Status)

	b, err = store.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(90), b.CV, "a second settlement must not reset counters")

	_, _, err = store.Settle(ctx, "cs_missing", paid, grant)
	assert.ErrorIs(t, err, billing.ErrTransactionNotFound)
}

func TestStore_SettleRollsBackOnGrantError(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, store.CreateTransaction(ctx, pendingTx("cs_1", "u1", "retired", now)))

	boom := errors.New("boom")
	_, applied, err := store.Settle(ctx, "cs_1",
		billing.Settlement{Status: billing.StatusCompleted, PaymentStatus: billing.PaymentPaid, At: now},
		func(ctx context.Context, tx *billing.Transaction, w ledger.GrantWriter) error {
			if _, err := w.ApplyGrant(ctx, tx.UserID, func(*ledger.Balance) ledger.Entitlement {
				return ledger.Entitlement{Tier: plans.TierUltra}
			}); err != nil {
				return err
			}
			return boom
		})
	assert.ErrorIs(t, err, boom)
	assert.False(t, applied)

	tx, err := store.GetTransaction(ctx, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, billing.StatusPending, tx.Status)
	_, err = store.GetBalance(ctx, "u1")
	assert.ErrorIs(t, err, ledger.ErrBalanceNotFound, "grant write must be rolled back")
}

func TestStore_Sends(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.RecordSends(ctx, []*spontaneous.Send{
		{ID: "s1", UserID: "u1", CompanyID: "comp_001", Status: spontaneous.SendStatusSent, CreatedAt: base},
		{ID: "s2", UserID: "u1", CompanyID: "comp_002", Status: spontaneous.SendStatusSent, CreatedAt: base.Add(time.Second)},
		{ID: "s3", UserID: "u10", CompanyID: "comp_003", Status: spontaneous.SendStatusSent, CreatedAt: base},
	}))
	require.NoError(t, store.RecordSends(ctx, nil))

	sends, err := store.ListSends(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, sends, 2, "prefix scan must not match other users")
	assert.Equal(t, "s2", sends[0].ID)
	assert.Equal(t, "s1", sends[1].ID)

	sends, err = store.ListSends(ctx, "u1", 1)
	require.NoError(t, err)
	assert.Len(t, sends, 1)
}

func TestStore_SendsScopedToOwner(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.RecordSends(ctx, []*spontaneous.Send{
		{ID: "s1", UserID: "a", CompanyID: "c1", Status: spontaneous.SendStatusSent, CreatedAt: at},
		{ID: "s2", UserID: "a/b", CompanyID: "secret", Status: spontaneous.SendStatusSent, CreatedAt: at},
	}))

	sends, err := store.ListSends(ctx, "a", 0)
	require.NoError(t, err)
	require.Len(t, sends, 1)
	assert.Equal(t, "c1", sends[0].CompanyID)

	sends, err = store.ListSends(ctx, "a/b", 0)
	require.NoError(t, err)
	require.Len(t, sends, 1)
	assert.Equal(t, "secret", sends[0].CompanyID)
}

func TestOpen_LockedByAnotherProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "joboost.db")
	store, err := Open(path, time.Second)
	require.NoError(t, err)
	defer store.Close()

	_, err = Open(path, 100*time.Millisecond)
	require.Error(t, err, "bolt holds an exclusive lock, so a second opener cannot share the file")
}

func TestStore_PingAfterClose(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "joboost.db"), 0)
	require.NoError(t, err)
	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, store.Close())
	assert.Error(t, store.Ping(context.Background()))
}
