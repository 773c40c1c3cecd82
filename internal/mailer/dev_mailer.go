package mailer

import (
	"fmt"
	"time"

	"github.com/devlance/auth-service/pkg/logger"
)

// DevMailer prints codes to the log instead of sending email. Default in
// development so the flows are testable without an email provider.
type DevMailer struct{}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) SendOTP(email, code string, expiry time.Duration) error {
	logger.Info("📧 [DEV MAIL] One-time code",
		"to", email,
		"code", code,
		"expires_in", expiry.String(),
	)

	fmt.Printf("\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"📧 ONE-TIME CODE (DEV MODE)\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"To: %s\n"+
		"Subject: Your Devlance verification code\n"+
		"\n"+
		"Code: %s\n"+
		"Expires in: %d minutes\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n",
		email, code, int(expiry.Minutes()))

	return nil
}
