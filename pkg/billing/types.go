package billing

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/joboost/pkg/ledger"
	"github.com/platinummonkey/joboost/pkg/plans"
)

var (
	// ErrInvalidPlan is returned when checkout is requested for an unknown or
	// non-purchasable plan.
	ErrInvalidPlan = errors.New("invalid plan")
	// ErrInvalidReturnURL is returned when the return base URL is not an absolute http(s) URL.
	ErrInvalidReturnURL = errors.New("invalid return url")
	// ErrPaymentProvider is returned when the payment provider rejects or fails
	// to open a checkout session.
	ErrPaymentProvider = errors.New("payment provider error")
	// ErrReconciliation is returned when the provider could not be queried for
	// a session status.
	ErrReconciliation = errors.New("reconciliation failed")
	// ErrTransactionNotFound is returned for unknown sessions, and for sessions
	// that belong to a different user.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrDuplicateTransaction is returned by stores when a session id is reused.
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	// ErrInvalidSignature is returned when a webhook payload fails verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrMalformedEvent is returned by ParseEvent when a verified payload
	// cannot be decoded. Redelivering it would not help.
	ErrMalformedEvent = errors.New("malformed webhook event")
)

// TransactionStatus is the local lifecycle of a payment.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

// PaymentStatus mirrors the provider's view of the payment.
type PaymentStatus string

const (
	PaymentInitiated PaymentStatus = "initiated"
	PaymentPaid      PaymentStatus = "paid"
	PaymentUnpaid    PaymentStatus = "unpaid"
)

// Transaction records one checkout attempt. It is immutable once completed.
type Transaction struct {
	TransactionID string            `json:"transaction_id"`
	SessionID     string            `json:"session_id"`
	UserID        string            `json:"user_id"`
	PlanID        string            `json:"plan"`
	AmountCents   int64             `json:"amount_cents"`
	Currency      string            `json:"currency"`
	Status        TransactionStatus `json:"status"`
	PaymentStatus PaymentStatus     `json:"payment_status"`
	CreatedAt     time.Time         `json:"created_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

// Terminal reports whether no further transitions are possible.
func (t *Transaction) Terminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// Settlement is the terminal state written by Store.Settle.
type Settlement struct {
	Status        TransactionStatus
	PaymentStatus PaymentStatus
	At            time.Time
}

// SettleFunc runs inside the store transaction that settled tx. Returning an
// error rolls the settlement back.
type SettleFunc func(ctx context.Context, tx *Transaction, w ledger.GrantWriter) error

// Store persists payment transactions.
type Store interface {
	// CreateTransaction inserts a new pending transaction. It returns
	// ErrDuplicateTransaction when the session id already exists.
	CreateTransaction(ctx context.Context, tx *Transaction) error
	// GetTransaction returns ErrTransactionNotFound for unknown sessions.
	GetTransaction(ctx context.Context, sessionID string) (*Transaction, error)
	// ListPending returns pending transactions created before the cutoff, oldest first.
	ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]*Transaction, error)
	// Settle moves a pending transaction to s and runs fn in the same store
	// transaction. When the transaction is not pending it does nothing and
	// returns the current record with applied=false. Unknown sessions return
	// ErrTransactionNotFound.
	Settle(ctx context.Context, sessionID string, s Settlement, fn SettleFunc) (tx *Transaction, applied bool, err error)
}

// Source identifies which notification path triggered a reconciliation.
type Source string

const (
	SourceWebhook Source = "webhook"
	SourcePoll    Source = "poll"
	SourceSweeper Source = "sweeper"
)

// ReportedStatus is the provider status, reduced to what reconciliation needs.
type ReportedStatus string

const (
	ReportedPaid   ReportedStatus = "paid"
	ReportedFailed ReportedStatus = "failed"
	ReportedOpen   ReportedStatus = "open"
)

// Outcome is what a reconciliation did.
type Outcome string

const (
	// OutcomeGranted means the transaction was completed and credits granted.
	OutcomeGranted Outcome = "granted"
	// OutcomeFailed means the transaction was marked failed; the ledger is untouched.
	OutcomeFailed Outcome = "failed"
	// OutcomeNoop means nothing changed: already settled, or still open.
	OutcomeNoop Outcome = "noop"
	// OutcomeIgnored means the session is unknown locally.
	OutcomeIgnored Outcome = "ignored"
)

// Result describes a reconciliation.
type Result struct {
	Outcome     Outcome
	Transaction *Transaction
	Balance     *ledger.Balance
}

// CheckoutRequest is what the payment provider needs to open a session.
type CheckoutRequest struct {
	UserID     string
	Plan       plans.Plan
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// ProviderSession is the provider's view of a checkout session.
type ProviderSession struct {
	ID            string
	URL           string
	Status        ReportedStatus
	RawStatus     string
	PaymentStatus string
	AmountTotal   int64
	Currency      string
	Metadata      map[string]string
}

// ProviderEvent is a verified webhook event.
type ProviderEvent struct {
	ID        string
	Type      string
	SessionID string
	Status    ReportedStatus
	// Relevant is false for event types reconciliation does not act on.
	Relevant bool
}

// PaymentProvider opens and inspects checkout sessions and verifies webhooks.
type PaymentProvider interface {
	CreateSession(ctx context.Context, req CheckoutRequest) (*ProviderSession, error)
	GetSession(ctx context.Context, sessionID string) (*ProviderSession, error)
	ParseEvent(payload []byte, signature string) (*ProviderEvent, error)
}
