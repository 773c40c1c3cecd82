package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/devlance/auth-service/internal/domain"
	"github.com/devlance/auth-service/internal/mailer"
	"github.com/devlance/auth-service/internal/repo/postgres"
	"github.com/devlance/auth-service/pkg/logger"
	"golang.org/x/crypto/bcrypt"
)

// Engine generates, dispatches, and verifies one-time codes. All attempt
// and expiry bookkeeping happens through atomic storage updates so that
// multiple API processes can verify concurrently without under-counting.
type Engine struct {
	repo   postgres.OTPRepository
	mailer mailer.Service
	ttl    time.Duration

	now func() time.Time
}

func NewEngine(repo postgres.OTPRepository, mailer mailer.Service, ttl time.Duration) *Engine {
	return &Engine{
		repo:   repo,
		mailer: mailer,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (e *Engine) TTL() time.Duration { return e.ttl }

// Issue creates a fresh code for (email, purpose), invalidating any earlier
// unused code of the same purpose, and dispatches the plaintext by email.
// Dispatch failure is a hard error: the stored hash is useless to a user
// who never received the code.
func (e *Engine) Issue(ctx context.Context, email, purpose string) error {
	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("failed to generate code: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash code: %w", err)
	}

	record := &domain.OneTimeCode{
		Email:     email,
		CodeHash:  string(hash),
		Purpose:   purpose,
		ExpiresAt: e.now().Add(e.ttl),
	}
	if err := e.repo.Save(ctx, record); err != nil {
		return fmt.Errorf("failed to store code: %w", err)
	}

	if err := e.mailer.SendOTP(email, code, e.ttl); err != nil {
		logger.ErrorContext(ctx, "otp dispatch failed", "error", err, "email", email, "purpose", purpose)
		return fmt.Errorf("failed to send code: %w", err)
	}

	return nil
}

// Verify checks a candidate code. The attempt counter is incremented before
// the hash comparison, so wrong guesses are charged even when the caller
// races another verify. Exactly one caller can consume a given code.
func (e *Engine) Verify(ctx context.Context, email, purpose, candidate string) error {
	record, err := e.repo.FindUsable(ctx, email, purpose)
	if err != nil {
		return fmt.Errorf("failed to look up code: %w", err)
	}
	if record == nil || !e.now().Before(record.ExpiresAt) {
		return domain.ErrOTPExpired
	}

	attempts, err := e.repo.IncrementAttempts(ctx, record.ID)
	if err != nil {
		return fmt.Errorf("failed to count attempt: %w", err)
	}
	if attempts > domain.MaxOTPAttempts {
		return domain.ErrOTPTooManyAttempts
	}

	if err := bcrypt.CompareHashAndPassword([]byte(record.CodeHash), []byte(candidate)); err != nil {
		return domain.ErrOTPInvalid
	}

	consumed, err := e.repo.MarkUsed(ctx, record.ID)
	if err != nil {
		return fmt.Errorf("failed to consume code: %w", err)
	}
	if !consumed {
		// Another request with the same code won the race.
		return domain.ErrOTPExpired
	}

	return nil
}

// generateCode draws a 6-digit numeric code uniformly over
// [100000, 999999] with crypto/rand.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
