package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/platinummonkey/joboost/pkg/ledger"
	"github.com/platinummonkey/joboost/pkg/plans"
)

const balanceColumns = `user_id, tier, cv_credits, letter_credits, spontaneous_credits, updated_at`

func scanBalance(row scanner) (*ledger.Balance, error) {
	var (
		b    ledger.Balance
		tier string
	)
	if err := row.Scan(&b.UserID, &tier, &b.CV, &b.Letter, &b.Spontaneous, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.Tier = plans.Tier(tier)
	return &b, nil
}

func getBalance(ctx context.Context, q queryer, userID string) (*ledger.Balance, error) {
	b, err := scanBalance(q.QueryRowContext(ctx,
		`SELECT `+balanceColumns+` FROM user_entitlements WHERE user_id = $1`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ledger.ErrBalanceNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return b, nil
}

// GetBalance reads from the primary so a debit or grant is visible immediately.
func (s *Store) GetBalance(ctx context.Context, userID string) (*ledger.Balance, error) {
	return getBalance(ctx, s.conns.Primary(), userID)
}

// CreateBalance inserts e for userID unless a record already exists.
func (s *Store) CreateBalance(ctx context.Context, userID string, e ledger.Entitlement) (*ledger.Balance, error) {
	_, err := s.conns.Primary().ExecContext(ctx, `
		INSERT INTO user_entitlements (user_id, tier, cv_credits, letter_credits, spontaneous_credits)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO NOTHING`,
		userID, string(e.Tier), e.CV, e.Letter, e.Spontaneous)
	if err != nil {
		return nil, fmt.Errorf("failed to create balance: %w", err)
	}
	return s.GetBalance(ctx, userID)
}

// Debit decrements one counter in a single conditional UPDATE. Ultra tier rows
// match the condition but keep their counter. When no row matches, a follow-up
// read tells a missing user apart from an insufficient balance.
func (s *Store) Debit(ctx context.Context, userID string, pool ledger.Pool, amount int64) (*ledger.Balance, error) {
	if _, err := ledger.ParsePool(string(pool)); err != nil {
		return nil, err
	}
	col := pool.Column()
	query := fmt.Sprintf(`
		UPDATE user_entitlements
		SET %[1]s = CASE WHEN tier = 'ultra' THEN %[1]s ELSE %[1]s - $2 END, updated_at = NOW()
		WHERE user_id = $1 AND (tier = 'ultra' OR %[1]s >= $2)
		RETURNING `, col) + balanceColumns

	b, err := scanBalance(s.conns.Primary().QueryRowContext(ctx, query, userID, amount))
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to debit balance: %w", err)
	}

	current, err := s.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	return nil, &ledger.InsufficientCreditError{
		UserID:    userID,
		Pool:      pool,
		Available: current.Get(pool),
		Requested: amount,
	}
}

// grantWriter applies grants inside a settlement transaction.
type grantWriter struct {
	tx *sql.Tx
}

// ApplyGrant locks the user's row, computes the new entitlement and upserts it.
// A missing row is passed to compute as nil and inserted.
func (w *grantWriter) ApplyGrant(ctx context.Context, userID string, compute func(current *ledger.Balance) ledger.Entitlement) (*ledger.Balance, error) {
	current, err := scanBalance(w.tx.QueryRowContext(ctx,
		`SELECT `+balanceColumns+` FROM user_entitlements WHERE user_id = $1 FOR UPDATE`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		current = nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to lock balance: %w", err)
	}

	e := compute(current)
	b, err := scanBalance(w.tx.QueryRowContext(ctx, `
		INSERT INTO user_entitlements (user_id, tier, cv_credits, letter_credits, spontaneous_credits, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			tier = EXCLUDED.tier,
			cv_credits = EXCLUDED.cv_credits,
			letter_credits = EXCLUDED.letter_credits,
			spontaneous_credits = EXCLUDED.spontaneous_credits,
			updated_at = NOW()
		RETURNING `+balanceColumns,
		userID, string(e.Tier), e.CV, e.Letter, e.Spontaneous))
	if err != nil {
		return nil, fmt.Errorf("failed to write grant: %w", err)
	}
	return b, nil
}
