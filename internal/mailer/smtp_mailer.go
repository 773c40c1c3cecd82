package mailer

import (
	"bytes"
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

// SMTPMailer sends through a plain SMTP relay. Works against Mailpit in
// development (no auth) and an authenticated relay in production.
type SMTPMailer struct {
	Host string
	Port int
	From string
	User string
	Pass string
}

func NewSMTPMailer(host string, port int, from, user, pass string) *SMTPMailer {
	return &SMTPMailer{
		Host: strings.TrimSpace(host),
		Port: port,
		From: strings.TrimSpace(from),
		User: strings.TrimSpace(user),
		Pass: strings.TrimSpace(pass),
	}
}

func (s *SMTPMailer) SendOTP(email, code string, expiry time.Duration) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("empty recipient email")
	}

	minutes := int(expiry.Minutes())
	subject := "Your Devlance verification code"
	text := fmt.Sprintf("Your verification code is: %s\n\nIt expires in %d minutes. If you didn't request it, ignore this email.", code, minutes)
	html := fmt.Sprintf(`
		<h2>Your Devlance verification code</h2>
		<p>Your code is: <strong style="font-size: 24px;">%s</strong></p>
		<p>It expires in %d minutes.</p>
		<p>If you didn't request this code, you can safely ignore this email.</p>
	`, code, minutes)

	var buf bytes.Buffer
	boundary := "mixed-boundary"

	fmt.Fprintf(&buf, "From: %s\r\n", s.From)
	fmt.Fprintf(&buf, "To: %s\r\n", email)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", boundary)

	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	fmt.Fprintf(&buf, "Content-Type: text/plain; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&buf, "%s\r\n\r\n", text)

	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	fmt.Fprintf(&buf, "Content-Type: text/html; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&buf, "%s\r\n\r\n", html)

	fmt.Fprintf(&buf, "--%s--\r\n", boundary)

	addr := fmt.Sprintf("%s:%d", s.Host, s.Port)

	var auth smtp.Auth
	if s.User != "" {
		auth = smtp.PlainAuth("", s.User, s.Pass, s.Host)
	}

	return smtp.SendMail(addr, auth, s.From, []string{email}, buf.Bytes())
}
