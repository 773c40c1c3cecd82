package ratelimit

import (
	"context"
	"time"

	"github.com/devlance/auth-service/pkg/logger"
)

// Admission policies. The policy name namespaces the counter key so the same
// identity can be limited independently per concern.
const (
	PolicyOTPSend    = "otp_send"
	PolicyOTPResend  = "otp_resend"
	PolicyCheckEmail = "check_email"
)

// Default policy parameters.
const (
	OTPSendLimit     = 5
	OTPSendWindow    = time.Hour
	OTPResendLimit   = 1
	OTPResendWindow  = 60 * time.Second
	CheckEmailLimit  = 20
	CheckEmailWindow = time.Minute
)

// CounterStore is the injectable counter backend. A single-instance
// in-memory implementation and a distributed Redis implementation are
// interchangeable without touching calling code.
type CounterStore interface {
	// Incr bumps the counter for key, starting a new window of the given
	// length if none is active, and returns the post-increment count along
	// with the moment the active window resets.
	Incr(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
}

// Decision is the outcome of an admission check. RetryAfter is populated
// only when the request was denied.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

type Limiter struct {
	store CounterStore
}

func NewLimiter(store CounterStore) *Limiter {
	return &Limiter{store: store}
}

// Check admits or denies one event for (policy, identity). It never returns
// an error: a failing counter store fails open, matching how the rest of
// the platform treats rate-limit infrastructure outages.
func (l *Limiter) Check(ctx context.Context, policy, identity string, max int64, window time.Duration) Decision {
	count, resetAt, err := l.store.Incr(ctx, policy+":"+identity, window)
	if err != nil {
		logger.WarnContext(ctx, "rate limit store unavailable, failing open", "policy", policy, "error", err)
		return Decision{Allowed: true}
	}

	if count > max {
		retry := time.Until(resetAt)
		if retry < time.Second {
			retry = time.Second
		}
		return Decision{Allowed: false, RetryAfter: retry}
	}
	return Decision{Allowed: true}
}

// CheckOTPSend enforces the hourly issuance cap per email.
func (l *Limiter) CheckOTPSend(ctx context.Context, email string) Decision {
	return l.Check(ctx, PolicyOTPSend, email, OTPSendLimit, OTPSendWindow)
}

// CheckOTPResend enforces the single-slot resend cooldown per email.
func (l *Limiter) CheckOTPResend(ctx context.Context, email string) Decision {
	return l.Check(ctx, PolicyOTPResend, email, OTPResendLimit, OTPResendWindow)
}

// CheckEmailProbe enforces the existence-probe cap per client IP.
func (l *Limiter) CheckEmailProbe(ctx context.Context, ip string) Decision {
	return l.Check(ctx, PolicyCheckEmail, ip, CheckEmailLimit, CheckEmailWindow)
}
