package domain

import "time"

// RefreshCredential is the server-side record of a long-lived refresh token.
// The signed token string is also the lookup key; a credential is valid only
// while both the signature and the stored expiry below agree it is.
type RefreshCredential struct {
	ID        int64
	AccountID int64
	Token     string
	UserAgent string
	IP        string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired checks the stored expiry independently of the token signature.
// The two can disagree after key rotation or clock skew; either one expiring
// invalidates the credential.
func (r *RefreshCredential) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
