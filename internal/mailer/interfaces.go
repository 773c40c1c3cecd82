package mailer

import "time"

// Service dispatches one-time codes out of band. Dispatch failure must
// propagate to the caller: the user has no other way to retrieve the code.
type Service interface {
	SendOTP(email, code string, expiry time.Duration) error
}
