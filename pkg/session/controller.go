// Package session is the client-side counterpart of the auth service. It
// holds the access token in memory, relies on the HTTP cookie jar for the
// refresh credential, and renews the access token on a timer shortly before
// it expires.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"
)

// Account is the identity view returned by the auth service.
type Account struct {
	ID              int64  `json:"id"`
	Email           string `json:"email"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Phone           string `json:"phone"`
	Role            string `json:"role"`
	IsVerified      bool   `json:"isVerified"`
	ProfileComplete bool   `json:"profileComplete"`
}

// ErrUnauthenticated is returned by operations that need a live session.
var ErrUnauthenticated = errors.New("not authenticated")

// DefaultRenewInterval is deliberately shorter than the 15 minute access
// token TTL so renewal lands before expiry.
const DefaultRenewInterval = 14 * time.Minute

type Option func(*Controller)

// WithRenewInterval overrides the silent-renewal period.
func WithRenewInterval(d time.Duration) Option {
	return func(c *Controller) { c.renewEvery = d }
}

// WithHTTPClient substitutes the underlying HTTP client. The client should
// carry a cookie jar or refresh will never succeed.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Controller) { c.client = client }
}

// Controller drives a browser-like session against the auth service. All
// methods are safe for concurrent use.
type Controller struct {
	baseURL    string
	client     *http.Client
	renewEvery time.Duration

	mu          sync.Mutex
	accessToken string
	account     *Account
	cancelRenew context.CancelFunc
}

func New(baseURL string, opts ...Option) (*Controller, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	c := &Controller{
		baseURL:    baseURL,
		client:     &http.Client{Jar: jar, Timeout: 15 * time.Second},
		renewEvery: DefaultRenewInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start restores a session from the refresh cookie: one proactive renewal,
// then an identity fetch, then the renewal timer. A failed renewal is not an
// error; it just means the controller starts unauthenticated.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.refresh(ctx); err != nil {
		return nil
	}

	account, err := c.fetchAccount(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.account = account
	c.mu.Unlock()

	c.scheduleRenewal()
	return nil
}

// Login opens a password session and (re)starts the renewal timer.
func (c *Controller) Login(ctx context.Context, email, password string) error {
	return c.establish(ctx, "/auth/login", map[string]string{"email": email, "password": password})
}

// VerifyOTP opens a session from a one-time code and (re)starts the timer.
func (c *Controller) VerifyOTP(ctx context.Context, email, code, purpose string) error {
	return c.establish(ctx, "/auth/verify-otp", map[string]string{"email": email, "otp": code, "type": purpose})
}

// Logout revokes the refresh credential, clears all session state, and
// cancels the renewal timer.
func (c *Controller) Logout(ctx context.Context) error {
	c.stopRenewal()

	resp, err := c.post(ctx, "/auth/logout", nil)
	if err == nil {
		resp.Body.Close()
	}

	c.mu.Lock()
	c.accessToken = ""
	c.account = nil
	c.mu.Unlock()

	return err
}

// Close stops the renewal timer without touching the server. For shutdown.
func (c *Controller) Close() {
	c.stopRenewal()
}

// AccessToken returns the held access token, or "" when unauthenticated.
func (c *Controller) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// Account returns the identity fetched at session start, or nil.
func (c *Controller) Account() *Account {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.account
}

func (c *Controller) Authenticated() bool {
	return c.AccessToken() != ""
}

func (c *Controller) establish(ctx context.Context, path string, payload interface{}) error {
	resp, err := c.post(ctx, path, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%s: %s", path, decodeError(resp))
	}

	var session struct {
		AccessToken string   `json:"accessToken"`
		Account     *Account `json:"account"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return fmt.Errorf("decode session: %w", err)
	}

	c.mu.Lock()
	c.accessToken = session.AccessToken
	c.account = session.Account
	c.mu.Unlock()

	c.scheduleRenewal()
	return nil
}

// refresh exchanges the refresh cookie for a fresh access token.
func (c *Controller) refresh(ctx context.Context) error {
	resp, err := c.post(ctx, "/auth/refresh", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("refresh: %s", decodeError(resp))
	}

	var body struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode refresh: %w", err)
	}

	c.mu.Lock()
	c.accessToken = body.AccessToken
	c.mu.Unlock()
	return nil
}

func (c *Controller) fetchAccount(ctx context.Context) (*Account, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthenticated
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch account: %s", decodeError(resp))
	}

	var account Account
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	return &account, nil
}

// scheduleRenewal replaces any running renewal loop with a fresh one. When a
// renewal fails the loop stops without clearing the held token; the token is
// left to expire on its own rather than forcing a logout.
func (c *Controller) scheduleRenewal() {
	c.mu.Lock()
	if c.cancelRenew != nil {
		c.cancelRenew()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelRenew = cancel
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(c.renewEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.refresh(ctx); err != nil {
					return
				}
			}
		}
	}()
}

func (c *Controller) stopRenewal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelRenew != nil {
		c.cancelRenew()
		c.cancelRenew = nil
	}
}

func (c *Controller) post(ctx context.Context, path string, payload interface{}) (*http.Response, error) {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.client.Do(req)
}

func decodeError(resp *http.Response) string {
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		return resp.Status
	}
	return body.Error
}
