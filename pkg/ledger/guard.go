package ledger

import (
	"context"
	"errors"

	"github.com/platinummonkey/joboost/pkg/observability"
)

// Guard gates paid actions on available credit. A successful Reserve has
// already debited the balance; callers do not get the credit back if the
// action that follows fails.
type Guard struct {
	ledger  *Ledger
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewGuard creates a consumption guard. metrics may be nil.
func NewGuard(l *Ledger, logger *observability.Logger, metrics *observability.Metrics) *Guard {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Guard{ledger: l, logger: logger, metrics: metrics}
}

// Reserve checks and debits amount credits from pool in one atomic step and
// returns the resulting balance.
func (g *Guard) Reserve(ctx context.Context, userID string, pool Pool, amount int64) (*Balance, error) {
	b, err := g.ledger.Debit(ctx, userID, pool, amount)
	if err != nil {
		var insufficient *InsufficientCreditError
		switch {
		case errors.As(err, &insufficient):
			g.metrics.RecordReservation(string(pool), "insufficient", amount)
			observability.FromContext(ctx).WithFields(map[string]interface{}{
				"pool":      pool,
				"available": insufficient.Available,
				"requested": amount,
			}).Info("Credit reservation refused")
		case errors.Is(err, ErrBalanceNotFound), errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidPool):
			g.metrics.RecordReservation(string(pool), "rejected", amount)
		default:
			g.metrics.RecordReservation(string(pool), "error", amount)
			g.logger.WithError(err).WithField("user_id", userID).Error("Credit reservation failed")
		}
		return nil, err
	}

	result := "granted"
	if b.Unlimited() {
		result = "exempt"
	}
	g.metrics.RecordReservation(string(pool), result, amount)
	return b, nil
}
