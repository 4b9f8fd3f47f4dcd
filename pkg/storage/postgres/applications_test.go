package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/joboost/pkg/applications"
)

var applicationCols = []string{
	"application_id", "user_id", "company_name", "job_title", "job_url", "job_description",
	"status", "notes", "deadline", "salary_range", "location", "generated_cover_letter", "generated_cv",
	"created_at", "updated_at",
}

func applicationRow(id, userID, status string, at time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(applicationCols).
		AddRow(id, userID, "Acme", "Développeur Go", "", "", status, "", "", "", "Paris", "", "", at, at)
}

func TestStore_Profile(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	updated := created.Add(time.Hour)

	mock.ExpectQuery(`SELECT data, created_at, updated_at FROM user_profiles WHERE user_id = \$1`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"data", "created_at", "updated_at"}))
	_, err := store.GetProfile(ctx, "ghost")
	assert.ErrorIs(t, err, applications.ErrProfileNotFound)

	p := &applications.Profile{UserID: "u1", Title: "Backend engineer", Skills: []string{"Go"}, CreatedAt: updated, UpdatedAt: updated}
	mock.ExpectQuery(`INSERT INTO user_profiles .* ON CONFLICT \(user_id\) DO UPDATE .* RETURNING created_at, updated_at`).
		WithArgs("u1", sqlmock.AnyArg(), updated, updated).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(created, updated))
	saved, err := store.PutProfile(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, created, saved.CreatedAt, "an existing profile keeps its creation time")
	assert.Equal(t, "Backend engineer", saved.Title)

	mock.ExpectQuery(`FROM user_profiles WHERE user_id`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"data", "created_at", "updated_at"}).
			AddRow([]byte(`{"title":"Backend engineer","skills":["Go","SQL"],"user_id":"someone-else"}`), created, updated))
	got, err := store.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, []string{"Go", "SQL"}, got.Skills)
	assert.Equal(t, created, got.CreatedAt)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateAndListApplications(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	a := &applications.Application{
		ID: "app_1", UserID: "u1", CompanyName: "Acme", JobTitle: "Développeur Go",
		Status: applications.StatusTodo, Location: "Paris", CreatedAt: now, UpdatedAt: now,
	}
	mock.ExpectExec(`INSERT INTO job_applications`).
		WithArgs("app_1", "u1", "Acme", "Développeur Go", "", "", "todo", "", "", "", "Paris", "", "", now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.CreateApplication(ctx, a))

	mock.ExpectQuery(`FROM job_applications\s+WHERE user_id = \$1\s+ORDER BY created_at DESC`).
		WithArgs("u1", 1000).
		WillReturnRows(applicationRow("app_1", "u1", "applied", now))
	list, err := store.ListApplications(ctx, "u1", 1000)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, applications.StatusApplied, list[0].Status)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetApplication_ScopedToOwner(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`WHERE application_id = \$1 AND user_id = \$2`).
		WithArgs("app_1", "intruder").
		WillReturnRows(sqlmock.NewRows(applicationCols))

	_, err := store.GetApplication(context.Background(), "intruder", "app_1")
	assert.ErrorIs(t, err, applications.ErrApplicationNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateApplication(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	later := now.Add(time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery(`WHERE application_id = \$1 AND user_id = \$2 FOR UPDATE`).
		WithArgs("app_1", "u1").
		WillReturnRows(applicationRow("app_1", "u1", "todo", now))
	mock.ExpectExec(`UPDATE job_applications\s+SET company_name = \$3`).
		WithArgs("app_1", "u1", "Acme", "Développeur Go", "", "", "todo", "", "", "", "Paris", "Madame, Monsieur,", "", later).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	updated, err := store.UpdateApplication(ctx, "u1", "app_1", func(a *applications.Application) error {
		a.Attach(applications.DocumentCoverLetter, "Madame, Monsieur,")
		a.UserID = "someone-else"
		a.UpdatedAt = later
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "u1", updated.UserID)
	assert.Equal(t, "Madame, Monsieur,", updated.GeneratedCoverLetter)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateApplication_Errors(t *testing.T) {
	t.Run("unknown application", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).WithArgs("app_x", "u1").WillReturnRows(sqlmock.NewRows(applicationCols))
		mock.ExpectRollback()

		_, err := store.UpdateApplication(context.Background(), "u1", "app_x", func(*applications.Application) error {
			t.Fatal("mutator must not run")
			return nil
		})
		assert.ErrorIs(t, err, applications.ErrApplicationNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("mutator error rolls back", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).WithArgs("app_1", "u1").WillReturnRows(applicationRow("app_1", "u1", "todo", time.Now()))
		mock.ExpectRollback()

		_, err := store.UpdateApplication(context.Background(), "u1", "app_1", func(*applications.Application) error {
			return applications.ErrInvalidApplication
		})
		assert.ErrorIs(t, err, applications.ErrInvalidApplication)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_DeleteApplication(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec(`DELETE FROM job_applications WHERE application_id = \$1 AND user_id = \$2`).
		WithArgs("app_1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.DeleteApplication(ctx, "u1", "app_1"))

	mock.ExpectExec(`DELETE FROM job_applications`).
		WithArgs("app_1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, store.DeleteApplication(ctx, "u1", "app_1"), applications.ErrApplicationNotFound)

	mock.ExpectExec(`DELETE FROM job_applications`).
		WithArgs("app_2", "u1").
		WillReturnError(errors.New("connection reset"))
	err := store.DeleteApplication(ctx, "u1", "app_2")
	require.Error(t, err)
	assert.NotErrorIs(t, err, applications.ErrApplicationNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}
