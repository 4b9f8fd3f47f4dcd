// Package storage holds the configuration shared by the persistence backends.
//
// # Backends
//
// Two implementations satisfy ledger.Store, billing.Store and
// spontaneous.SendStore:
//
//   - postgres: the production store. Balances and transactions live in
//     user_entitlements and payment_transactions. Debits are single
//     conditional UPDATE statements, and settlement runs inside one SQL
//     transaction that locks the user's balance row.
//   - bolt: an embedded single-file store for development and single-node
//     deployments. Bolt allows one writer at a time, so every read-modify-write
//     happens inside db.Update.
//
// Select a backend through Config:
//
//	cfg := storage.DefaultConfig()
//	cfg.Backend = storage.BackendPostgres
//	cfg.PostgresURL = "postgres://localhost/joboost?sslmode=disable"
//
// # Redis
//
// Redis is optional. When RedisURL is set, the status polling rate limiter is
// shared across instances and readiness reports the Redis connection.
//
// # Invariants
//
// Both backends guarantee that:
//
//   - a credit counter never goes below zero
//   - a transaction leaves the pending state exactly once
//   - the credit grant for a completed transaction commits together with the
//     status change, or not at all
package storage
