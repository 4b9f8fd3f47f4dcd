package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/joboost/pkg/plans"
)

var (
	// ErrInsufficientCredit is returned when a debit would drive a pool negative.
	ErrInsufficientCredit = errors.New("insufficient credit")
	// ErrBalanceNotFound is returned when the user has no entitlement record.
	ErrBalanceNotFound = errors.New("balance not found")
	// ErrInvalidAmount is returned for non-positive debit amounts.
	ErrInvalidAmount = errors.New("debit amount must be positive")
	// ErrInvalidPool is returned for an unknown pool name.
	ErrInvalidPool = errors.New("invalid credit pool")
)

// Pool names one of the consumable credit counters.
type Pool string

const (
	PoolCV          Pool = "cv"
	PoolLetter      Pool = "letter"
	PoolSpontaneous Pool = "spontaneous"
)

// Pools lists every pool in a stable order.
var Pools = []Pool{PoolCV, PoolLetter, PoolSpontaneous}

// ParsePool validates a pool name.
func ParsePool(s string) (Pool, error) {
	switch p := Pool(s); p {
	case PoolCV, PoolLetter, PoolSpontaneous:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPool, s)
	}
}

// Column is the storage column backing the pool.
func (p Pool) Column() string {
	return string(p) + "_credits"
}

// Balance is a user's entitlement record.
type Balance struct {
	UserID      string     `json:"user_id"`
	Tier        plans.Tier `json:"tier"`
	CV          int64      `json:"cv_credits"`
	Letter      int64      `json:"letter_credits"`
	Spontaneous int64      `json:"spontaneous_credits"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Get returns the counter for pool.
func (b *Balance) Get(pool Pool) int64 {
	switch pool {
	case PoolCV:
		return b.CV
	case PoolLetter:
		return b.Letter
	case PoolSpontaneous:
		return b.Spontaneous
	default:
		return 0
	}
}

// Set overwrites the counter for pool.
func (b *Balance) Set(pool Pool, v int64) {
	switch pool {
	case PoolCV:
		b.CV = v
	case PoolLetter:
		b.Letter = v
	case PoolSpontaneous:
		b.Spontaneous = v
	}
}

// Unlimited reports whether debits against this balance are exempt.
func (b *Balance) Unlimited() bool {
	return b.Tier == plans.TierUltra
}

// Apply overwrites tier and counters with e.
func (b *Balance) Apply(e Entitlement) {
	b.Tier = e.Tier
	b.CV = e.CV
	b.Letter = e.Letter
	b.Spontaneous = e.Spontaneous
}

// Entitlement is the tier and counter set written by a grant.
type Entitlement struct {
	Tier        plans.Tier
	CV          int64
	Letter      int64
	Spontaneous int64
}

// FreeEntitlement is what every account starts with.
var FreeEntitlement = Entitlement{Tier: plans.TierFree, CV: 1, Letter: 1, Spontaneous: 5}

// EntitlementFor computes the record written when plan is purchased by a user
// currently at tier current. Counters are replaced by the plan grants, not
// added; the tier never moves down.
func EntitlementFor(current plans.Tier, plan plans.Plan) Entitlement {
	return Entitlement{
		Tier:        plans.Max(current, plan.Tier),
		CV:          plan.Grants.CV,
		Letter:      plan.Grants.Letter,
		Spontaneous: plan.Grants.Spontaneous,
	}
}

// InsufficientCreditError carries the amounts behind an ErrInsufficientCredit.
type InsufficientCreditError struct {
	UserID    string
	Pool      Pool
	Available int64
	Requested int64
}

func (e *InsufficientCreditError) Error() string {
	return fmt.Sprintf("insufficient %s credit for user %s: available %d, requested %d",
		e.Pool, e.UserID, e.Available, e.Requested)
}

func (e *InsufficientCreditError) Unwrap() error { return ErrInsufficientCredit }

// Store persists entitlement records.
type Store interface {
	// GetBalance returns ErrBalanceNotFound for unknown users.
	GetBalance(ctx context.Context, userID string) (*Balance, error)
	// CreateBalance inserts the record if absent and returns the stored record
	// either way.
	CreateBalance(ctx context.Context, userID string, e Entitlement) (*Balance, error)
	// Debit atomically decrements pool by amount unless the record is ultra
	// tier. It returns *InsufficientCreditError when the counter is too low.
	Debit(ctx context.Context, userID string, pool Pool, amount int64) (*Balance, error)
}

// GrantWriter applies a grant inside the caller's store transaction. compute
// receives the current record, locked for update, and returns the new one.
type GrantWriter interface {
	ApplyGrant(ctx context.Context, userID string, compute func(current *Balance) Entitlement) (*Balance, error)
}
