// Package bolt is an embedded single-file store for entitlements, payment
// transactions, spontaneous applications, profiles and tracked applications.
//
// Bolt runs at most one read-write transaction at a time, so every
// read-modify-write below executes inside a single db.Update and is
// serialized against all other writers.
package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/boltdb/bolt"

	"github.com/platinummonkey/joboost/pkg/applications"
	"github.com/platinummonkey/joboost/pkg/billing"
	"github.com/platinummonkey/joboost/pkg/ledger"
	"github.com/platinummonkey/joboost/pkg/spontaneous"
)

var (
	entitlementsBucket = []byte("entitlements")
	transactionsBucket = []byte("transactions")
	sendsBucket        = []byte("spontaneous_sends")
	profilesBucket     = []byte("profiles")
	applicationsBucket = []byte("applications")
)

// keySep separates the owner from the rest of a composite key.
const keySep = "\x00"

var (
	_ ledger.Store          = (*Store)(nil)
	_ billing.Store         = (*Store)(nil)
	_ spontaneous.SendStore = (*Store)(nil)
	_ applications.Store    = (*Store)(nil)
)

// Store implements the ledger, billing, send and application stores on a
// Bolt file.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// Open opens or creates the database at path.
func Open(path string, timeout time.Duration) (*Store, error) {
	if timeout == 0 {
		timeout = time.Second
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{entitlementsBucket, transactionsBucket, sendsBucket, profilesBucket, applicationsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping fails once the database is closed.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(*bolt.Tx) error { return nil })
}

func getJSON(b *bolt.Bucket, key string, v interface{}) (bool, error) {
	data := b.Get([]byte(key))
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("corrupt record %q: %w", key, err)
	}
	return true, nil
}

func putJSON(b *bolt.Bucket, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

// --- entitlements ---

func loadBalance(tx *bolt.Tx, userID string) (*ledger.Balance, error) {
	var b ledger.Balance
	found, err := getJSON(tx.Bucket(entitlementsBucket), userID, &b)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ledger.ErrBalanceNotFound, userID)
	}
	return &b, nil
}

// GetBalance returns the user's record.
func (s *Store) GetBalance(ctx context.Context, userID string) (*ledger.Balance, error) {
	var out *ledger.Balance
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := loadBalance(tx, userID)
		out = b
		return err
	})
	return out, err
}

// CreateBalance stores e for userID unless a record already exists.
func (s *Store) CreateBalance(ctx context.Context, userID string, e ledger.Entitlement) (*ledger.Balance, error) {
	var out *ledger.Balance
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(entitlementsBucket)
		var existing ledger.Balance
		found, err := getJSON(bucket, userID, &existing)
		if err != nil {
			return err
		}
		if found {
			out = &existing
			return nil
		}
		b := &ledger.Balance{UserID: userID, UpdatedAt: s.now().UTC()}
		b.Apply(e)
		out = b
		return putJSON(bucket, userID, b)
	})
	return out, err
}

// Debit decrements pool unless the record is ultra tier.
func (s *Store) Debit(ctx context.Context, userID string, pool ledger.Pool, amount int64) (*ledger.Balance, error) {
	if _, err := ledger.ParsePool(string(pool)); err != nil {
		return nil, err
	}
	var out *ledger.Balance
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := loadBalance(tx, userID)
		if err != nil {
			return err
		}
		if b.Unlimited() {
			out = b
			return nil
		}
		if available := b.Get(pool); available < amount {
			return &ledger.InsufficientCreditError{UserID: userID, Pool: pool, Available: available, Requested: amount}
		}
		b.Set(pool, b.Get(pool)-amount)
		b.UpdatedAt = s.now().UTC()
		out = b
		return putJSON(tx.Bucket(entitlementsBucket), userID, b)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type grantWriter struct {
	tx  *bolt.Tx
	now time.Time
}

// ApplyGrant runs inside the settlement's write transaction, which already
// excludes every other writer.
func (w *grantWriter) ApplyGrant(ctx context.Context, userID string, compute func(current *ledger.Balance) ledger.Entitlement) (*ledger.Balance, error) {
	bucket := w.tx.Bucket(entitlementsBucket)
	var current ledger.Balance
	found, err := getJSON(bucket, userID, &current)
	if err != nil {
		return nil, err
	}

	var e ledger.Entitlement
	if found {
		e = compute(&current)
	} else {
		e = compute(nil)
	}
	b := &ledger.Balance{UserID: userID, UpdatedAt: w.now}
	b.Apply(e)
	if err := putJSON(bucket, userID, b); err != nil {
		return nil, err
	}
	return b, nil
}

// --- transactions ---

func loadTransaction(tx *bolt.Tx, sessionID string) (*billing.Transaction, error) {
	var t billing.Transaction
	found, err := getJSON(tx.Bucket(transactionsBucket), sessionID, &t)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", billing.ErrTransactionNotFound, sessionID)
	}
	return &t, nil
}

// CreateTransaction stores a new transaction keyed by session id.
func (s *Store) CreateTransaction(ctx context.Context, t *billing.Transaction) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(transactionsBucket)
		if bucket.Get([]byte(t.SessionID)) != nil {
			return fmt.Errorf("%w: %s", billing.ErrDuplicateTransaction, t.SessionID)
		}
		return putJSON(bucket, t.SessionID, t)
	})
}

// GetTransaction returns the transaction for sessionID.
func (s *Store) GetTransaction(ctx context.Context, sessionID string) (*billing.Transaction, error) {
	var out *billing.Transaction
	err := s.db.View(func(tx *bolt.Tx) error {
		t, err := loadTransaction(tx, sessionID)
		out = t
		return err
	})
	return out, err
}

// ListPending scans every transaction. Bolt has no secondary indexes and the
// pending set stays small.
func (s *Store) ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]*billing.Transaction, error) {
	var out []*billing.Transaction
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(transactionsBucket).ForEach(func(k, v []byte) error {
			var t billing.Transaction
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("corrupt record %q: %w", k, err)
			}
			if t.Status == billing.StatusPending && t.CreatedAt.Before(createdBefore) {
				out = append(out, &t)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Settle moves a pending transaction to st and runs fn in the same write
// transaction. An error from fn discards both.
func (s *Store) Settle(ctx context.Context, sessionID string, st billing.Settlement, fn billing.SettleFunc) (*billing.Transaction, bool, error) {
	var (
		out     *billing.Transaction
		applied bool
	)
	err := s.db.Update(func(tx *bolt.Tx) error {
		t, err := loadTransaction(tx, sessionID)
		if err != nil {
			return err
		}
		if t.Status != billing.StatusPending {
			out = t
			return nil
		}

		t.Status = st.Status
		t.PaymentStatus = st.PaymentStatus
		if st.Status == billing.StatusCompleted {
			at := st.At
			t.CompletedAt = &at
		}
		if fn != nil {
			if err := fn(ctx, t, &grantWriter{tx: tx, now: st.At}); err != nil {
				return err
			}
		}
		if err := putJSON(tx.Bucket(transactionsBucket), sessionID, t); err != nil {
			return err
		}
		out, applied = t, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, applied, nil
}

// --- spontaneous sends ---

// sendKey orders a user's sends by creation time.
func sendKey(s *spontaneous.Send) []byte {
	return []byte(fmt.Sprintf("%s%s%020d/%s", s.UserID, keySep, s.CreatedAt.UnixNano(), s.ID))
}

// RecordSends stores sends in one write transaction.
func (s *Store) RecordSends(ctx context.Context, sends []*spontaneous.Send) error {
	if len(sends) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(sendsBucket)
		for _, send := range sends {
			data, err := json.Marshal(send)
			if err != nil {
				return err
			}
			if err := bucket.Put(sendKey(send), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListSends returns the user's most recent sends, newest first.
func (s *Store) ListSends(ctx context.Context, userID string, limit int) ([]*spontaneous.Send, error) {
	if limit <= 0 {
		limit = 50
	}
	prefix := []byte(userID + keySep)
	var out []*spontaneous.Send
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(sendsBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var send spontaneous.Send
			if err := json.Unmarshal(v, &send); err != nil {
				return fmt.Errorf("corrupt record %q: %w", k, err)
			}
			if send.UserID != userID {
				continue
			}
			out = append(out, &send)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
