package domain

import "time"

// OTP purposes. A purpose scopes a code to the flow that requested it;
// issuing a code for one purpose never invalidates codes of another.
const (
	OTPPurposeLogin  = "login"
	OTPPurposeSignup = "signup"
	OTPPurposeReset  = "reset"
)

// MaxOTPAttempts is the number of verify calls a single code may absorb
// before it is burned, counting the successful one.
const MaxOTPAttempts = 5

var validOTPPurposes = map[string]bool{
	OTPPurposeLogin:  true,
	OTPPurposeSignup: true,
	OTPPurposeReset:  true,
}

func IsValidOTPPurpose(purpose string) bool {
	return validOTPPurposes[purpose]
}

// OneTimeCode is the persisted form of an issued code. Only the bcrypt hash
// is stored; the plaintext leaves the process exactly once, inside the
// dispatch email.
type OneTimeCode struct {
	ID        int64
	Email     string
	CodeHash  string
	Purpose   string
	Attempts  int
	Used      bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Usable reports whether the code can still be presented for verification.
// Expiry is always re-checked at read time; a stale row in storage carries
// no authority.
func (c *OneTimeCode) Usable(now time.Time) bool {
	return !c.Used && c.Attempts < MaxOTPAttempts && now.Before(c.ExpiresAt)
}
