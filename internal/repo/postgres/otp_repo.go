package postgres

import (
	"context"
	"time"

	"github.com/devlance/auth-service/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OTPRepository interface {
	// Save persists a new hashed code after deleting any unused codes for
	// the same (email, purpose), keeping at most one usable code alive.
	Save(ctx context.Context, code *domain.OneTimeCode) error
	// FindUsable returns the newest unexpired, unused code for
	// (email, purpose), or nil when none exists.
	FindUsable(ctx context.Context, email, purpose string) (*domain.OneTimeCode, error)
	// IncrementAttempts atomically bumps the attempt counter and returns the
	// post-increment value. Concurrent verify calls serialize here, at the
	// storage layer, not on an in-process lock.
	IncrementAttempts(ctx context.Context, id int64) (int, error)
	// MarkUsed flips used=true exactly once; the second caller loses the
	// race and gets false.
	MarkUsed(ctx context.Context, id int64) (bool, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

type otpRepository struct {
	pool *pgxpool.Pool
}

func NewOTPRepository(pool *pgxpool.Pool) OTPRepository {
	return &otpRepository{pool: pool}
}

func (r *otpRepository) Save(ctx context.Context, code *domain.OneTimeCode) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const del = `DELETE FROM one_time_codes WHERE email = $1 AND purpose = $2 AND used = false`
	if _, err := tx.Exec(ctx, del, code.Email, code.Purpose); err != nil {
		return err
	}

	const ins = `
		INSERT INTO one_time_codes (email, code_hash, purpose, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	if err := tx.QueryRow(ctx, ins, code.Email, code.CodeHash, code.Purpose, code.ExpiresAt).Scan(&code.ID, &code.CreatedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *otpRepository) FindUsable(ctx context.Context, email, purpose string) (*domain.OneTimeCode, error) {
	const q = `
		SELECT id, email, code_hash, purpose, attempts, used, expires_at, created_at
		FROM one_time_codes
		WHERE email = $1 AND purpose = $2 AND used = false AND expires_at > now()
		ORDER BY id DESC
		LIMIT 1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var c domain.OneTimeCode
	err := r.pool.QueryRow(ctx, q, email, purpose).Scan(
		&c.ID, &c.Email, &c.CodeHash, &c.Purpose, &c.Attempts, &c.Used, &c.ExpiresAt, &c.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return &c, err
}

func (r *otpRepository) IncrementAttempts(ctx context.Context, id int64) (int, error) {
	const q = `UPDATE one_time_codes SET attempts = attempts + 1 WHERE id = $1 RETURNING attempts`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var attempts int
	err := r.pool.QueryRow(ctx, q, id).Scan(&attempts)
	return attempts, err
}

func (r *otpRepository) MarkUsed(ctx context.Context, id int64) (bool, error) {
	const q = `UPDATE one_time_codes SET used = true WHERE id = $1 AND used = false`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

func (r *otpRepository) DeleteExpired(ctx context.Context) (int64, error) {
	const q = `DELETE FROM one_time_codes WHERE used = true OR expires_at < now()`

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
