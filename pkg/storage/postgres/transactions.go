package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/platinummonkey/joboost/pkg/billing"
)

const transactionColumns = `session_id, transaction_id, user_id, plan_id, amount_cents, currency, status, payment_status, created_at, completed_at`

// uniqueViolation is the PostgreSQL error code for unique_violation.
const uniqueViolation = "23505"

const defaultPendingLimit = 100

func scanTransaction(row scanner) (*billing.Transaction, error) {
	var (
		t             billing.Transaction
		status        string
		paymentStatus string
		completedAt   sql.NullTime
	)
	if err := row.Scan(&t.SessionID, &t.TransactionID, &t.UserID, &t.PlanID, &t.AmountCents,
		&t.Currency, &status, &paymentStatus, &t.CreatedAt, &completedAt); err != nil {
		return nil, err
	}
	t.Status = billing.TransactionStatus(status)
	t.PaymentStatus = billing.PaymentStatus(paymentStatus)
	if completedAt.Valid {
		at := completedAt.Time
		t.CompletedAt = &at
	}
	return &t, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func getTransaction(ctx context.Context, q queryer, sessionID string) (*billing.Transaction, error) {
	t, err := scanTransaction(q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM payment_transactions WHERE session_id = $1`, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", billing.ErrTransactionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

// CreateTransaction inserts a pending transaction.
func (s *Store) CreateTransaction(ctx context.Context, t *billing.Transaction) error {
	_, err := s.conns.Primary().ExecContext(ctx, `
		INSERT INTO payment_transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.SessionID, t.TransactionID, t.UserID, t.PlanID, t.AmountCents, t.Currency,
		string(t.Status), string(t.PaymentStatus), t.CreatedAt, nullTime(t.CompletedAt))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", billing.ErrDuplicateTransaction, t.SessionID)
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// GetTransaction reads a transaction by session id from the primary.
func (s *Store) GetTransaction(ctx context.Context, sessionID string) (*billing.Transaction, error) {
	return getTransaction(ctx, s.conns.Primary(), sessionID)
}

// ListPending reads from a replica. A stale row only costs an extra provider
// poll, since Settle re-checks the status on the primary.
func (s *Store) ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]*billing.Transaction, error) {
	if limit <= 0 {
		limit = defaultPendingLimit
	}
	rows, err := s.conns.Replica().QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM payment_transactions
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2`, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	defer rows.Close()

	var out []*billing.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Settle moves a pending transaction to its terminal state and runs fn in the
// same SQL transaction. The UPDATE only matches pending rows, so concurrent
// settlements of one session serialize on the row and exactly one applies.
func (s *Store) Settle(ctx context.Context, sessionID string, st billing.Settlement, fn billing.SettleFunc) (*billing.Transaction, bool, error) {
	tx, err := s.conns.Primary().BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var completedAt sql.NullTime
	if st.Status == billing.StatusCompleted {
		completedAt = sql.NullTime{Time: st.At, Valid: true}
	}

	t, err := scanTransaction(tx.QueryRowContext(ctx, `
		UPDATE payment_transactions
		SET status = $2, payment_status = $3, completed_at = $4
		WHERE session_id = $1 AND status = 'pending'
		RETURNING `+transactionColumns,
		sessionID, string(st.Status), string(st.PaymentStatus), completedAt))
	if errors.Is(err, sql.ErrNoRows) {
		current, err := getTransaction(ctx, tx, sessionID)
		if err != nil {
			return nil, false, err
		}
		return current, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to settle transaction: %w", err)
	}

	if fn != nil {
		if err := fn(ctx, t, &grantWriter{tx: tx}); err != nil {
			return nil, false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit settlement: %w", err)
	}
	return t, true, nil
}
