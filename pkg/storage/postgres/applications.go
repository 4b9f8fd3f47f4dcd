package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/platinummonkey/joboost/pkg/applications"
)

const applicationColumns = `application_id, user_id, company_name, job_title, job_url, job_description,
	status, notes, deadline, salary_range, location, generated_cover_letter, generated_cv,
	created_at, updated_at`

// GetProfile returns the user's master profile.
func (s *Store) GetProfile(ctx context.Context, userID string) (*applications.Profile, error) {
	var (
		data []byte
		p    applications.Profile
	)
	err := s.conns.Replica().QueryRowContext(ctx, `
		SELECT data, created_at, updated_at FROM user_profiles WHERE user_id = $1`, userID).
		Scan(&data, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", applications.ErrProfileNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	createdAt, updatedAt := p.CreatedAt, p.UpdatedAt
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	p.UserID, p.CreatedAt, p.UpdatedAt = userID, createdAt, updatedAt
	return &p, nil
}

// PutProfile upserts the profile. An existing row keeps its created_at.
func (s *Store) PutProfile(ctx context.Context, p *applications.Profile) (*applications.Profile, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode profile: %w", err)
	}
	out := *p
	err = s.conns.Primary().QueryRowContext(ctx, `
		INSERT INTO user_profiles (user_id, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at`,
		p.UserID, data, p.CreatedAt, p.UpdatedAt).
		Scan(&out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}
	return &out, nil
}

// CreateApplication inserts a new application.
func (s *Store) CreateApplication(ctx context.Context, a *applications.Application) error {
	_, err := s.conns.Primary().ExecContext(ctx, `
		INSERT INTO job_applications (`+applicationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		applicationArgs(a)...)
	if err != nil {
		return fmt.Errorf("failed to insert application: %w", err)
	}
	return nil
}

// GetApplication returns the application if userID owns it.
func (s *Store) GetApplication(ctx context.Context, userID, applicationID string) (*applications.Application, error) {
	return getApplication(ctx, s.conns.Replica(), userID, applicationID, "")
}

func getApplication(ctx context.Context, q queryer, userID, applicationID, lock string) (*applications.Application, error) {
	a, err := scanApplication(q.QueryRowContext(ctx, `
		SELECT `+applicationColumns+`
		FROM job_applications
		WHERE application_id = $1 AND user_id = $2`+lock, applicationID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", applications.ErrApplicationNotFound, applicationID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return a, nil
}

// ListApplications returns the user's applications, newest first.
func (s *Store) ListApplications(ctx context.Context, userID string, limit int) ([]*applications.Application, error) {
	rows, err := s.conns.Replica().QueryContext(ctx, `
		SELECT `+applicationColumns+`
		FROM job_applications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	var out []*applications.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateApplication locks the row, applies fn and writes the result back in
// one transaction.
func (s *Store) UpdateApplication(ctx context.Context, userID, applicationID string, fn applications.ApplicationMutator) (*applications.Application, error) {
	tx, err := s.conns.Primary().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	a, err := getApplication(ctx, tx, userID, applicationID, " FOR UPDATE")
	if err != nil {
		return nil, err
	}
	if err := fn(a); err != nil {
		return nil, err
	}
	a.ID, a.UserID = applicationID, userID

	if _, err := tx.ExecContext(ctx, `
		UPDATE job_applications
		SET company_name = $3, job_title = $4, job_url = $5, job_description = $6,
			status = $7, notes = $8, deadline = $9, salary_range = $10, location = $11,
			generated_cover_letter = $12, generated_cv = $13, updated_at = $14
		WHERE application_id = $1 AND user_id = $2`,
		a.ID, a.UserID, a.CompanyName, a.JobTitle, a.JobURL, a.JobDescription,
		string(a.Status), a.Notes, a.Deadline, a.SalaryRange, a.Location,
		a.GeneratedCoverLetter, a.GeneratedCV, a.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to update application: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit application: %w", err)
	}
	return a, nil
}

// DeleteApplication removes the application if userID owns it.
func (s *Store) DeleteApplication(ctx context.Context, userID, applicationID string) error {
	res, err := s.conns.Primary().ExecContext(ctx,
		`DELETE FROM job_applications WHERE application_id = $1 AND user_id = $2`, applicationID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete application: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete application: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", applications.ErrApplicationNotFound, applicationID)
	}
	return nil
}

func applicationArgs(a *applications.Application) []interface{} {
	return []interface{}{
		a.ID, a.UserID, a.CompanyName, a.JobTitle, a.JobURL, a.JobDescription,
		string(a.Status), a.Notes, a.Deadline, a.SalaryRange, a.Location,
		a.GeneratedCoverLetter, a.GeneratedCV, a.CreatedAt, a.UpdatedAt,
	}
}

func scanApplication(row scanner) (*applications.Application, error) {
	var (
		a      applications.Application
		status string
	)
	if err := row.Scan(
		&a.ID, &a.UserID, &a.CompanyName, &a.JobTitle, &a.JobURL, &a.JobDescription,
		&status, &a.Notes, &a.Deadline, &a.SalaryRange, &a.Location,
		&a.GeneratedCoverLetter, &a.GeneratedCV, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.Status = applications.Status(status)
	return &a, nil
}
