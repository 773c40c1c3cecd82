package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/devlance/auth-service/pkg/logger"
	"github.com/nats-io/nats.go"
)

// Publisher is the outbound half of the bus. The auth service only
// publishes; downstream collaborators (notify, analytics) subscribe.
type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

// Auth lifecycle subjects.
const (
	AccountRegistered = "account.registered"
	AccountLogin      = "account.login"
	AccountLogout     = "account.logout"
	OTPSent           = "otp.sent"
)

type AccountRegisteredEvent struct {
	AccountID int64     `json:"account_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type AccountLoginEvent struct {
	AccountID int64     `json:"account_id"`
	Email     string    `json:"email"`
	Method    string    `json:"method"` // password or otp
	LoginAt   time.Time `json:"login_at"`
}

type AccountLogoutEvent struct {
	AccountID int64     `json:"account_id"`
	LogoutAt  time.Time `json:"logout_at"`
}

type OTPSentEvent struct {
	Email   string    `json:"email"`
	Purpose string    `json:"purpose"`
	SentAt  time.Time `json:"sent_at"`
}

type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn}, nil
}

func (n *NATSPublisher) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "publishing event", "subject", subject)

	return n.conn.Publish(subject, payload)
}

func (n *NATSPublisher) Close() error {
	n.conn.Close()
	return nil
}

// NopPublisher swallows events. Used when NATS is disabled in config.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }
func (NopPublisher) Close() error                                       { return nil }
