package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/joboost/pkg/billing"
	"github.com/platinummonkey/joboost/pkg/ledger"
	"github.com/platinummonkey/joboost/pkg/plans"
	"github.com/platinummonkey/joboost/pkg/spontaneous"
)

var (
	balanceCols     = []string{"user_id", "tier", "cv_credits", "letter_credits", "spontaneous_credits", "updated_at"}
	transactionCols = []string{"session_id", "transaction_id", "user_id", "plan_id", "amount_cents", "currency", "status", "payment_status", "created_at", "completed_at"}
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(NewConnectionManagerFromDB(db), nil), mock
}

func TestStore_GetBalance(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT ` + balanceColumns + ` FROM user_entitlements WHERE user_id = $1`)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(balanceCols).AddRow("u1", "pro", 100, 99, 500, now))

	b, err := store.GetBalance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, plans.TierPro, b.Tier)
	assert.Equal(t, int64(99), b.Letter)
	assert.Equal(t, now, b.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetBalance_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM user_entitlements WHERE user_id`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(balanceCols))

	_, err := store.GetBalance(context.Background(), "ghost")
	assert.ErrorIs(t, err, ledger.ErrBalanceNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateBalance(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO user_entitlements .* ON CONFLICT \(user_id\) DO NOTHING`).
		WithArgs("u1", "free", 1, 1, 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM user_entitlements WHERE user_id`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(balanceCols).AddRow("u1", "free", 1, 1, 5, now))

	b, err := store.CreateBalance(context.Background(), "u1", ledger.FreeEntitlement)
	require.NoError(t, err)
	assert.Equal(t, int64(5), b.Spontaneous)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Debit(t *testing.T) {
	const debitSQL = `UPDATE user_entitlements\s+SET letter_credits = CASE WHEN tier = 'ultra' THEN letter_credits ELSE letter_credits - \$2 END`
	now := time.Now().UTC()

	t.Run("granted", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(debitSQL).
			WithArgs("u1", 1).
			WillReturnRows(sqlmock.NewRows(balanceCols).AddRow("u1", "free", 1, 0, 5, now))

		b, err := store.Debit(context.Background(), "u1", ledger.PoolLetter, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(0), b.Letter)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(debitSQL).
			WithArgs("u1", 2).
			WillReturnRows(sqlmock.NewRows(balanceCols))
		mock.ExpectQuery(`FROM user_entitlements WHERE user_id`).
			WithArgs("u1").
			WillReturnRows(sqlmock.NewRows(balanceCols).AddRow("u1", "free", 1, 1, 5, now))

		_, err := store.Debit(context.Background(), "u1", ledger.PoolLetter, 2)
		require.ErrorIs(t, err, ledger.ErrInsufficientCredit)
		var insufficient *ledger.InsufficientCreditError
		require.ErrorAs(t, err, &insufficient)
		assert.Equal(t, int64(1), insufficient.Available)
		assert.Equal(t, int64(2), insufficient.Requested)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown user", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(debitSQL).WithArgs("ghost", 1).WillReturnRows(sqlmock.NewRows(balanceCols))
		mock.ExpectQuery(`FROM user_entitlements WHERE user_id`).WithArgs("ghost").WillReturnRows(sqlmock.NewRows(balanceCols))

		_, err := store.Debit(context.Background(), "ghost", ledger.PoolLetter, 1)
		assert.ErrorIs(t, err, ledger.ErrBalanceNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("driver error", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(debitSQL).WithArgs("u1", 1).WillReturnError(errors.New("connection reset"))

		_, err := store.Debit(context.Background(), "u1", ledger.PoolLetter, 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection reset")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid pool never reaches the database", func(t *testing.T) {
		store, mock := newMockStore(t)
		_, err := store.Debit(context.Background(), "u1", ledger.Pool("ai"), 1)
		assert.ErrorIs(t, err, ledger.ErrInvalidPool)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_CreateTransaction(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tx := &billing.Transaction{
		TransactionID: "tx_0123456789ab",
		SessionID:     "cs_test_1",
		UserID:        "u1",
		PlanID:        plans.PlanProMonthly,
		AmountCents:   999,
		Currency:      "eur",
		Status:        billing.StatusPending,
		PaymentStatus: billing.PaymentInitiated,
		CreatedAt:     created,
	}

	t.Run("inserted", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(`INSERT INTO payment_transactions`).
			WithArgs("cs_test_1", "tx_0123456789ab", "u1", "pro_monthly", 999, "eur", "pending", "initiated", created, nil).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.CreateTransaction(context.Background(), tx))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate session", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(`INSERT INTO payment_transactions`).
			WillReturnError(&pq.Error{Code: uniqueViolation, Message: "duplicate key value"})

		err := store.CreateTransaction(context.Background(), tx)
		assert.ErrorIs(t, err, billing.ErrDuplicateTransaction)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_ListPending(t *testing.T) {
	store, mock := newMockStore(t)
	cutoff := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	created := cutoff.Add(-time.Hour)

	mock.ExpectQuery(`WHERE status = 'pending' AND created_at < \$1\s+ORDER BY created_at ASC\s+LIMIT \$2`).
		WithArgs(cutoff, defaultPendingLimit).
		WillReturnRows(sqlmock.NewRows(transactionCols).
			AddRow("cs_1", "tx_1", "u1", "pro_monthly", 999, "eur", "pending", "initiated", created, nil).
			AddRow("cs_2", "tx_2", "u2", "ultra_yearly", 14999, "eur", "pending", "initiated", created, nil))

	pending, err := store.ListPending(context.Background(), cutoff, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "cs_1", pending[0].SessionID)
	assert.Nil(t, pending[0].CompletedAt)
	assert.Equal(t, billing.StatusPending, pending[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

const settleSQL = `UPDATE payment_transactions\s+SET status = \$2, payment_status = \$3, completed_at = \$4\s+WHERE session_id = \$1 AND status = 'pending'`

func TestStore_Settle_GrantsInSameTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	created := now.Add(-5 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery(settleSQL).
		WithArgs("cs_1", "completed", "paid", now).
		WillReturnRows(sqlmock.NewRows(transactionCols).
			AddRow("cs_1", "tx_1", "u1", "pro_monthly", 999, "eur", "completed", "paid", created, now))
	mock.ExpectQuery(`FROM user_entitlements WHERE user_id = \$1 FOR UPDATE`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(balanceCols).AddRow("u1", "free", 0, 1, 5, created))
	mock.ExpectQuery(`INSERT INTO user_entitlements .* ON CONFLICT \(user_id\) DO UPDATE SET`).
		WithArgs("u1", "pro", 100, 100, 500).
		WillReturnRows(sqlmock.NewRows(balanceCols).AddRow("u1", "pro", 100, 100, 500, now))
	mock.ExpectCommit()

	plan, err := plans.DefaultCatalog().Lookup(plans.PlanProMonthly)
	require.NoError(t, err)
	l := ledger.New(store, nil)

	var granted *ledger.Balance
	tx, applied, err := store.Settle(context.Background(), "cs_1",
		billing.Settlement{Status: billing.StatusCompleted, PaymentStatus: billing.PaymentPaid, At: now},
		func(ctx context.Context, tx *billing.Transaction, w ledger.GrantWriter) error {
			var err error
			granted, err = l.Grant(ctx, w, tx.UserID, plan)
			return err
		})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, billing.StatusCompleted, tx.Status)
	require.NotNil(t, tx.CompletedAt)
	assert.Equal(t, now, *tx.CompletedAt)
	assert.Equal(t, plans.TierPro, granted.Tier)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Settle_AlreadySettled(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(settleSQL).WillReturnRows(sqlmock.NewRows(transactionCols))
	mock.ExpectQuery(`FROM payment_transactions WHERE session_id = \$1`).
		WithArgs("cs_1").
		WillReturnRows(sqlmock.NewRows(transactionCols).
			AddRow("cs_1", "tx_1", "u1", "pro_monthly", 999, "eur", "completed", "paid", now, now))
	mock.ExpectRollback()

	called := false
	tx, applied, err := store.Settle(context.Background(), "cs_1",
		billing.Settlement{Status: billing.StatusCompleted, PaymentStatus: billing.PaymentPaid, At: now},
		func(context.Context, *billing.Transaction, ledger.GrantWriter) error {
			called = true
			return nil
		})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.False(t, called, "grant must not run for a settled transaction")
	assert.Equal(t, billing.StatusCompleted, tx.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Settle_UnknownSession(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(settleSQL).WillReturnRows(sqlmock.NewRows(transactionCols))
	mock.ExpectQuery(`FROM payment_transactions WHERE session_id = \$1`).
		WithArgs("cs_nope").
		WillReturnRows(sqlmock.NewRows(transactionCols))
	mock.ExpectRollback()

	_, _, err := store.Settle(context.Background(), "cs_nope",
		billing.Settlement{Status: billing.StatusFailed, PaymentStatus: billing.PaymentUnpaid, At: time.Now()}, nil)
	assert.ErrorIs(t, err, billing.ErrTransactionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Settle_FailedStatusLeavesCompletedAtEmpty(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(settleSQL).
		WithArgs("cs_1", "failed", "unpaid", nil).
		WillReturnRows(sqlmock.NewRows(transactionCols).
			AddRow("cs_1", "tx_1", "u1", "pro_monthly", 999, "eur", "failed", "unpaid", now, nil))
	mock.ExpectCommit()

	tx, applied, err := store.Settle(context.Background(), "cs_1",
		billing.Settlement{Status: billing.StatusFailed, PaymentStatus: billing.PaymentUnpaid, At: now}, nil)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Nil(t, tx.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Settle_GrantErrorRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(settleSQL).
		WillReturnRows(sqlmock.NewRows(transactionCols).
			AddRow("cs_1", "tx_1", "u1", "retired_plan", 999, "eur", "completed", "paid", now, now))
	mock.ExpectRollback()

	_, applied, err := store.Settle(context.Background(), "cs_1",
		billing.Settlement{Status: billing.StatusCompleted, PaymentStatus: billing.PaymentPaid, At: now},
		func(context.Context, *billing.Transaction, ledger.GrantWriter) error {
			return plans.ErrPlanNotFound
		})
	assert.ErrorIs(t, err, plans.ErrPlanNotFound)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Sends(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	sends := []*spontaneous.Send{
		{ID: "s1", UserID: "u1", CompanyID: "comp_001", Status: spontaneous.SendStatusSent, CreatedAt: now},
		{ID: "s2", UserID: "u1", CompanyID: "comp_002", Status: spontaneous.SendStatusSent, CreatedAt: now},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO spontaneous_applications`)
	prep.ExpectExec().WithArgs("s1", "u1", "comp_001", "sent", now).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("s2", "u1", "comp_002", "sent", now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	require.NoError(t, store.RecordSends(context.Background(), sends))

	mock.ExpectQuery(`FROM spontaneous_applications\s+WHERE user_id = \$1`).
		WithArgs("u1", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "company_id", "status", "created_at"}).
			AddRow("s2", "u1", "comp_002", "sent", now))
	listed, err := store.ListSends(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, spontaneous.SendStatusSent, listed[0].Status)

	require.NoError(t, store.RecordSends(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Ping(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectPing()
	require.NoError(t, store.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("down"))
	assert.Error(t, store.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_AppliesPendingVersions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(version\), 0\) FROM schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))
	for _, m := range GetMigrations()[1:] {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(m.SQL)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`INSERT INTO schema_migrations`).
			WithArgs(m.Version, m.Description).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParseReplicaURLs(t *testing.T) {
	assert.Nil(t, ParseReplicaURLs(""))
	assert.Equal(t, []string{"postgres://a", "postgres://b"}, ParseReplicaURLs(" postgres://a, ,postgres://b "))
}
