package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns every schema migration in version order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create user_entitlements table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_entitlements (
					user_id VARCHAR(255) PRIMARY KEY,
					tier VARCHAR(16) NOT NULL DEFAULT 'free' CHECK (tier IN ('free', 'pro', 'ultra')),
					cv_credits BIGINT NOT NULL DEFAULT 0 CHECK (cv_credits >= 0),
					letter_credits BIGINT NOT NULL DEFAULT 0 CHECK (letter_credits >= 0),
					spontaneous_credits BIGINT NOT NULL DEFAULT 0 CHECK (spontaneous_credits >= 0),
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     2,
			Description: "Create payment_transactions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS payment_transactions (
					session_id VARCHAR(255) PRIMARY KEY,
					transaction_id VARCHAR(64) NOT NULL UNIQUE,
					user_id VARCHAR(255) NOT NULL,
					plan_id VARCHAR(64) NOT NULL,
					amount_cents BIGINT NOT NULL,
					currency VARCHAR(8) NOT NULL,
					status VARCHAR(16) NOT NULL CHECK (status IN ('pending', 'completed', 'failed')),
					payment_status VARCHAR(16) NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					completed_at TIMESTAMPTZ
				);

				CREATE INDEX IF NOT EXISTS idx_payment_transactions_user_id ON payment_transactions(user_id);
				CREATE INDEX IF NOT EXISTS idx_payment_transactions_pending ON payment_transactions(created_at) WHERE status = 'pending';
			`,
		},
		{
			Version:     3,
			Description: "Create spontaneous_applications table",
			SQL: `
				CREATE TABLE IF NOT EXISTS spontaneous_applications (
					id VARCHAR(64) PRIMARY KEY,
					user_id VARCHAR(255) NOT NULL,
					company_id VARCHAR(255) NOT NULL,
					status VARCHAR(16) NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_spontaneous_applications_user ON spontaneous_applications(user_id, created_at DESC);
			`,
		},
		{
			Version:     4,
			Description: "Create user_profiles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_profiles (
					user_id VARCHAR(255) PRIMARY KEY,
					data JSONB NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     5,
			Description: "Create job_applications table",
			SQL: `
				CREATE TABLE IF NOT EXISTS job_applications (
					application_id VARCHAR(64) PRIMARY KEY,
					user_id VARCHAR(255) NOT NULL,
					company_name TEXT NOT NULL,
					job_title TEXT NOT NULL,
					job_url TEXT NOT NULL DEFAULT '',
					job_description TEXT NOT NULL DEFAULT '',
					status VARCHAR(16) NOT NULL CHECK (status IN ('todo', 'applied', 'interview', 'offer', 'rejected')),
					notes TEXT NOT NULL DEFAULT '',
					deadline VARCHAR(32) NOT NULL DEFAULT '',
					salary_range VARCHAR(64) NOT NULL DEFAULT '',
					location TEXT NOT NULL DEFAULT '',
					generated_cover_letter TEXT NOT NULL DEFAULT '',
					generated_cv TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_job_applications_user ON job_applications(user_id, created_at DESC);
			`,
		},
	}
}

// Migrate applies every migration newer than the recorded schema version.
// Each migration runs in its own transaction.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range GetMigrations() {
		if m.Version <= current {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, description) VALUES ($1, $2)`,
		m.Version, m.Description); err != nil {
		return err
	}
	return tx.Commit()
}
