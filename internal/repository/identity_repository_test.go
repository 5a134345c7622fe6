package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/auth-service/internal/domain"
)

var columns = []string{
	"id", "email", "password_hash", "password_enabled", "email_confirmed",
	"first_name", "last_name", "year_of_birth", "gender", "created_at", "updated_at",
}

func newMock(t *testing.T) (pgxmock.PgxPoolIface, IdentityRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewIdentityRepository(mock)
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

func TestIdentityRepository_FindByEmail(t *testing.T) {
	mock, repo := newMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM identities WHERE email=$1")).
		WithArgs("a@example.com").
		WillReturnRows(pgxmock.NewRows(columns).AddRow(
			"0d4b1d1e-7f43-4c41-9bd1-0d1b0b0b0b0b", "a@example.com", strPtr("$2a$10$hash"), true, true,
			strPtr("Ada"), (*string)(nil), intPtr(1990), strPtr("FEMALE"), now, now,
		))

	identity, err := repo.FindByEmail(context.Background(), "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", identity.Email)
	assert.Equal(t, "$2a$10$hash", identity.PasswordHash)
	assert.True(t, identity.HasPassword())
	require.NotNil(t, identity.Gender)
	assert.Equal(t, domain.GenderFemale, *identity.Gender)
	assert.Nil(t, identity.LastName)
	assert.Equal(t, 1990, *identity.YearOfBirth)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityRepository_FindByEmailMissing(t *testing.T) {
	mock, repo := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM identities WHERE email=$1")).
		WithArgs("nobody@example.com").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.FindByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityRepository_FindByIDRejectsMalformedID(t *testing.T) {
	mock, repo := newMock(t)

	_, err := repo.FindByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityRepository_CreateDuplicateEmail(t *testing.T) {
	mock, repo := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO identities")).
		WithArgs(pgxmock.AnyArg(), "a@example.com", pgxmock.AnyArg(), true).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "identities_email_key"})

	_, err := repo.Create(context.Background(), "a@example.com", "$2a$10$hash")
	assert.ErrorIs(t, err, ErrDuplicateEmail)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityRepository_CreateWithoutPassword(t *testing.T) {
	mock, repo := newMock(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO identities")).
		WithArgs(pgxmock.AnyArg(), "link@example.com", (*string)(nil), false).
		WillReturnRows(pgxmock.NewRows(columns).AddRow(
			"5f0e8d0e-2c0b-4b8b-a2d8-7b0d4e1e9f11", "link@example.com", (*string)(nil), false, false,
			(*string)(nil), (*string)(nil), (*int)(nil), (*string)(nil), now, now,
		))

	identity, err := repo.Create(context.Background(), "link@example.com", "")
	require.NoError(t, err)
	assert.False(t, identity.HasPassword())
	assert.Empty(t, identity.PasswordHash)
	assert.Nil(t, identity.Gender)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityRepository_Delete(t *testing.T) {
	mock, repo := newMock(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM identities WHERE id=$1")).
		WithArgs("id-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM identities WHERE id=$1")).
		WithArgs("id-2").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM identities WHERE id=$1")).
		WithArgs("id-3").
		WillReturnError(errors.New("connection reset"))

	deleted, err := repo.Delete(ctx, "id-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(ctx, "id-2")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = repo.Delete(ctx, "id-3")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
