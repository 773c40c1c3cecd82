package domain

import (
	"errors"
	"fmt"
	"time"
)

// Typed failure variants raised by the service and repository layers.
// The HTTP layer maps these to status codes with errors.Is switches;
// nothing anywhere inspects error message text.
var (
	// Account / credential store
	ErrDuplicateEmail  = errors.New("email already registered")
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountInactive = errors.New("account is deactivated")

	// Password login
	ErrNoPasswordSet      = errors.New("account has no password set")
	ErrInvalidCredentials = errors.New("incorrect password")

	// OTP engine
	ErrOTPExpired         = errors.New("otp expired or not found")
	ErrOTPInvalid         = errors.New("incorrect otp")
	ErrOTPTooManyAttempts = errors.New("too many otp attempts")

	// Refresh flow
	ErrRefreshInvalid = errors.New("invalid refresh credential")

	// Rate limiting
	ErrRateLimited = errors.New("rate limit exceeded")
)

// RateLimitError carries the machine-readable retry delay alongside the
// admission-denied variant. errors.Is(err, ErrRateLimited) matches it.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry in %ds", int(e.RetryAfter.Seconds()))
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// ValidationError tags malformed-input failures so the HTTP layer can map
// them to 400 without matching message text.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

