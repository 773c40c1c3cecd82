package postgres

import (
	"context"
	"time"

	"github.com/devlance/auth-service/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RefreshRepository interface {
	Save(ctx context.Context, cred *domain.RefreshCredential) error
	FindByToken(ctx context.Context, token string) (*domain.RefreshCredential, error)
	// DeleteByToken removes the credential if present. Deleting an absent
	// token is not an error; logout is idempotent.
	DeleteByToken(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

type refreshRepository struct {
	pool *pgxpool.Pool
}

func NewRefreshRepository(pool *pgxpool.Pool) RefreshRepository {
	return &refreshRepository{pool: pool}
}

func (r *refreshRepository) Save(ctx context.Context, cred *domain.RefreshCredential) error {
	const q = `
		INSERT INTO refresh_credentials (account_id, token, user_agent, ip, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return r.pool.QueryRow(ctx, q, cred.AccountID, cred.Token, cred.UserAgent, cred.IP, cred.ExpiresAt).
		Scan(&cred.ID, &cred.CreatedAt)
}

func (r *refreshRepository) FindByToken(ctx context.Context, token string) (*domain.RefreshCredential, error) {
	const q = `
		SELECT id, account_id, token, user_agent, ip, expires_at, created_at
		FROM refresh_credentials
		WHERE token = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var c domain.RefreshCredential
	err := r.pool.QueryRow(ctx, q, token).Scan(
		&c.ID, &c.AccountID, &c.Token, &c.UserAgent, &c.IP, &c.ExpiresAt, &c.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return &c, err
}

func (r *refreshRepository) DeleteByToken(ctx context.Context, token string) error {
	const q = `DELETE FROM refresh_credentials WHERE token = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, token)
	return err
}

func (r *refreshRepository) DeleteExpired(ctx context.Context) (int64, error) {
	const q = `DELETE FROM refresh_credentials WHERE expires_at < now()`

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
