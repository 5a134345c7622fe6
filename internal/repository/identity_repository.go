package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/auth-service/internal/domain"
)

var (
	// ErrNotFound reports a missing identity.
	ErrNotFound = errors.New("identity not found")
	// ErrDuplicateEmail reports a violated email uniqueness constraint.
	ErrDuplicateEmail = errors.New("email already registered")
)

const uniqueViolation = "23505"

// IdentityRepository defines persistence access for identities. Mutations
// return the updated record.
type IdentityRepository interface {
	FindByEmail(ctx context.Context, email string) (*domain.Identity, error)
	FindByID(ctx context.Context, id string) (*domain.Identity, error)
	Create(ctx context.Context, email, passwordHash string) (*domain.Identity, error)
	UpdateProfile(ctx context.Context, id string, profile domain.Profile) (*domain.Identity, error)
	UpdateCredential(ctx context.Context, id, passwordHash string) (*domain.Identity, error)
	SetPasswordEnabled(ctx context.Context, id string, enabled bool) (*domain.Identity, error)
	SetEmail(ctx context.Context, id, email string) (*domain.Identity, error)
	MarkEmailConfirmed(ctx context.Context, id string) (*domain.Identity, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// DB is the subset of *pgxpool.Pool the repository uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type identityRepository struct {
	db DB
}

// NewIdentityRepository returns a Postgres-backed implementation.
func NewIdentityRepository(db DB) IdentityRepository {
	return &identityRepository{db: db}
}

const identityColumns = `id, email, password_hash, password_enabled, email_confirmed,
        first_name, last_name, year_of_birth, gender, created_at, updated_at`

func (r *identityRepository) FindByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	const query = `SELECT ` + identityColumns + ` FROM identities WHERE email=$1`
	return r.scanOne(r.db.QueryRow(ctx, query, email))
}

func (r *identityRepository) FindByID(ctx context.Context, id string) (*domain.Identity, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	const query = `SELECT ` + identityColumns + ` FROM identities WHERE id=$1`
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

func (r *identityRepository) Create(ctx context.Context, email, passwordHash string) (*domain.Identity, error) {
	const query = `
        INSERT INTO identities (id, email, password_hash, password_enabled)
        VALUES ($1, $2, $3, $4)
        RETURNING ` + identityColumns

	var hash *string
	if passwordHash != "" {
		hash = &passwordHash
	}
	return r.scanOne(r.db.QueryRow(ctx, query, uuid.NewString(), email, hash, hash != nil))
}

func (r *identityRepository) UpdateProfile(ctx context.Context, id string, profile domain.Profile) (*domain.Identity, error) {
	const query = `
        UPDATE identities SET first_name=$1, last_name=$2, year_of_birth=$3, gender=$4, updated_at=NOW()
        WHERE id=$5
        RETURNING ` + identityColumns

	var gender *string
	if profile.Gender != nil {
		g := string(*profile.Gender)
		gender = &g
	}
	return r.scanOne(r.db.QueryRow(ctx, query, profile.FirstName, profile.LastName, profile.YearOfBirth, gender, id))
}

func (r *identityRepository) UpdateCredential(ctx context.Context, id, passwordHash string) (*domain.Identity, error) {
	const query = `
        UPDATE identities SET password_hash=$1, password_enabled=TRUE, updated_at=NOW()
        WHERE id=$2
        RETURNING ` + identityColumns
	return r.scanOne(r.db.QueryRow(ctx, query, passwordHash, id))
}

func (r *identityRepository) SetPasswordEnabled(ctx context.Context, id string, enabled bool) (*domain.Identity, error) {
	const query = `
        UPDATE identities SET password_enabled=$1, updated_at=NOW()
        WHERE id=$2
        RETURNING ` + identityColumns
	return r.scanOne(r.db.QueryRow(ctx, query, enabled, id))
}

func (r *identityRepository) SetEmail(ctx context.Context, id, email string) (*domain.Identity, error) {
	const query = `
        UPDATE identities SET email=$1, email_confirmed=TRUE, updated_at=NOW()
        WHERE id=$2
        RETURNING ` + identityColumns
	return r.scanOne(r.db.QueryRow(ctx, query, email, id))
}

func (r *identityRepository) MarkEmailConfirmed(ctx context.Context, id string) (*domain.Identity, error) {
	const query = `
        UPDATE identities SET email_confirmed=TRUE, updated_at=NOW()
        WHERE id=$1
        RETURNING ` + identityColumns
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

func (r *identityRepository) Delete(ctx context.Context, id string) (bool, error) {
	cmd, err := r.db.Exec(ctx, `DELETE FROM identities WHERE id=$1`, id)
	if err != nil {
		return false, fmt.Errorf("delete identity: %w", err)
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *identityRepository) scanOne(row pgx.Row) (*domain.Identity, error) {
	var (
		identity domain.Identity
		hash     *string
		gender   *string
	)
	if err := row.Scan(
		&identity.ID,
		&identity.Email,
		&hash,
		&identity.PasswordEnabled,
		&identity.EmailConfirmed,
		&identity.FirstName,
		&identity.LastName,
		&identity.YearOfBirth,
		&gender,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	); err != nil {
		return nil, mapError(err)
	}
	if hash != nil {
		identity.PasswordHash = *hash
	}
	if gender != nil {
		g := domain.Gender(*gender)
		identity.Gender = &g
	}
	return &identity, nil
}

func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicateEmail, pgErr.ConstraintName)
	}
	return err
}
