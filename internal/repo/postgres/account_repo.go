package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/devlance/auth-service/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AccountRepository interface {
	Create(ctx context.Context, acc *domain.Account) (*domain.Account, error)
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindByID(ctx context.Context, id int64) (*domain.Account, error)
	Delete(ctx context.Context, id int64) error
	TouchLastLogin(ctx context.Context, id int64) error
}

type accountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(pool *pgxpool.Pool) AccountRepository {
	return &accountRepository{pool: pool}
}

const accountCols = `id, email, password_hash, first_name, last_name, phone, role, is_verified, is_active, profile_complete, last_login_at, created_at, updated_at`

const uniqueViolation = "23505"

func (r *accountRepository) Create(ctx context.Context, acc *domain.Account) (*domain.Account, error) {
	const q = `
		INSERT INTO accounts (email, password_hash, first_name, last_name, phone, role)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + accountCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var out domain.Account
	err := r.pool.QueryRow(ctx, q, acc.Email, acc.PasswordHash, acc.FirstName, acc.LastName, acc.Phone, acc.Role).Scan(
		&out.ID, &out.Email, &out.PasswordHash, &out.FirstName, &out.LastName, &out.Phone, &out.Role,
		&out.IsVerified, &out.IsActive, &out.ProfileComplete, &out.LastLoginAt, &out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, domain.ErrDuplicateEmail
		}
		return nil, err
	}

	return &out, nil
}

func (r *accountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	const q = `SELECT ` + accountCols + ` FROM accounts WHERE email = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var out domain.Account
	err := r.pool.QueryRow(ctx, q, email).Scan(
		&out.ID, &out.Email, &out.PasswordHash, &out.FirstName, &out.LastName, &out.Phone, &out.Role,
		&out.IsVerified, &out.IsActive, &out.ProfileComplete, &out.LastLoginAt, &out.CreatedAt, &out.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return &out, err
}

func (r *accountRepository) FindByID(ctx context.Context, id int64) (*domain.Account, error) {
	const q = `SELECT ` + accountCols + ` FROM accounts WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var out domain.Account
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&out.ID, &out.Email, &out.PasswordHash, &out.FirstName, &out.LastName, &out.Phone, &out.Role,
		&out.IsVerified, &out.IsActive, &out.ProfileComplete, &out.LastLoginAt, &out.CreatedAt, &out.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return &out, err
}

// Delete exists for the registration-rollback path only. Accounts are never
// hard-deleted anywhere else.
func (r *accountRepository) Delete(ctx context.Context, id int64) error {
	const q = `DELETE FROM accounts WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *accountRepository) TouchLastLogin(ctx context.Context, id int64) error {
	const q = `UPDATE accounts SET last_login_at = now(), updated_at = now() WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, id)
	return err
}
