package postgres

import (
	"context"
	"fmt"

	"github.com/platinummonkey/joboost/pkg/spontaneous"
)

const defaultSendsLimit = 50

// RecordSends inserts sends in one transaction.
func (s *Store) RecordSends(ctx context.Context, sends []*spontaneous.Send) error {
	if len(sends) == 0 {
		return nil
	}
	tx, err := s.conns.Primary().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO spontaneous_applications (id, user_id, company_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, send := range sends {
		if _, err := stmt.ExecContext(ctx, send.ID, send.UserID, send.CompanyID, string(send.Status), send.CreatedAt); err != nil {
			return fmt.Errorf("failed to record send to %s: %w", send.CompanyID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sends: %w", err)
	}
	return nil
}

// ListSends returns the user's most recent sends, newest first.
func (s *Store) ListSends(ctx context.Context, userID string, limit int) ([]*spontaneous.Send, error) {
	if limit <= 0 {
		limit = defaultSendsLimit
	}
	rows, err := s.conns.Replica().QueryContext(ctx, `
		SELECT id, user_id, company_id, status, created_at
		FROM spontaneous_applications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sends: %w", err)
	}
	defer rows.Close()

	var out []*spontaneous.Send
	for rows.Next() {
		var (
			send   spontaneous.Send
			status string
		)
		if err := rows.Scan(&send.ID, &send.UserID, &send.CompanyID, &status, &send.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan send: %w", err)
		}
		send.Status = spontaneous.SendStatus(status)
		out = append(out, &send)
	}
	return out, rows.Err()
}
