package postgres

import (
	"context"
	"database/sql"

	"github.com/platinummonkey/joboost/pkg/applications"
	"github.com/platinummonkey/joboost/pkg/billing"
	"github.com/platinummonkey/joboost/pkg/ledger"
	"github.com/platinummonkey/joboost/pkg/observability"
	"github.com/platinummonkey/joboost/pkg/spontaneous"
)

var (
	_ ledger.Store          = (*Store)(nil)
	_ billing.Store         = (*Store)(nil)
	_ spontaneous.SendStore = (*Store)(nil)
	_ applications.Store    = (*Store)(nil)
	_ ledger.GrantWriter    = (*grantWriter)(nil)
)

// queryer is the subset of *sql.DB and *sql.Tx the store uses.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// Store is the PostgreSQL implementation of the entitlement, transaction,
// spontaneous send and application stores.
type Store struct {
	conns  *ConnectionManager
	logger *observability.Logger
}

// NewStore creates a store over conns.
func NewStore(conns *ConnectionManager, logger *observability.Logger) *Store {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Store{conns: conns, logger: logger}
}

// DB returns the primary pool.
func (s *Store) DB() *sql.DB {
	return s.conns.Primary()
}

// Ping checks the primary and replicas.
func (s *Store) Ping(ctx context.Context) error {
	return s.conns.HealthCheck(ctx)
}

// Close closes every pool.
func (s *Store) Close() error {
	return s.conns.Close()
}
