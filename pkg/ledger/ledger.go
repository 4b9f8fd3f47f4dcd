package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/joboost/pkg/observability"
	"github.com/platinummonkey/joboost/pkg/plans"
)

// Ledger is the credit ledger. Grants only happen through reconciliation,
// which hands in its own transactional GrantWriter.
type Ledger struct {
	store  Store
	logger *observability.Logger
}

// New creates a ledger over store.
func New(store Store, logger *observability.Logger) *Ledger {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Ledger{store: store, logger: logger}
}

// Register creates the free entitlement record for a new user. Calling it for
// an existing user returns the current record unchanged.
func (l *Ledger) Register(ctx context.Context, userID string) (*Balance, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	b, err := l.store.CreateBalance(ctx, userID, FreeEntitlement)
	if err != nil {
		return nil, fmt.Errorf("failed to register balance: %w", err)
	}
	return b, nil
}

// GetBalance returns the user's current record.
func (l *Ledger) GetBalance(ctx context.Context, userID string) (*Balance, error) {
	b, err := l.store.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Grant applies plan to the user's record through w. Counters are overwritten
// with the plan grants and the tier is raised to the plan's tier if higher.
func (l *Ledger) Grant(ctx context.Context, w GrantWriter, userID string, plan plans.Plan) (*Balance, error) {
	b, err := w.ApplyGrant(ctx, userID, func(current *Balance) Entitlement {
		tier := plans.TierFree
		if current != nil {
			tier = current.Tier
		}
		return EntitlementFor(tier, plan)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to grant plan %s: %w", plan.ID, err)
	}

	l.logger.WithFields(map[string]interface{}{
		"user_id": userID,
		"plan":    plan.ID,
		"tier":    b.Tier,
	}).Info("Plan credits granted")
	return b, nil
}

// Debit removes amount credits from pool. Ultra tier records are not
// decremented.
func (l *Ledger) Debit(ctx context.Context, userID string, pool Pool, amount int64) (*Balance, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if _, err := ParsePool(string(pool)); err != nil {
		return nil, err
	}
	b, err := l.store.Debit(ctx, userID, pool, amount)
	if err != nil {
		var insufficient *InsufficientCreditError
		if errors.As(err, &insufficient) || errors.Is(err, ErrBalanceNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to debit %s credit: %w", pool, err)
	}
	return b, nil
}
