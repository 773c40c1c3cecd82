package session_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/devlance/auth-service/pkg/session"
)

// fakeAuthServer speaks just enough of the auth API for the controller:
// login sets the refresh cookie, refresh requires it, me requires a bearer.
type fakeAuthServer struct {
	mu           sync.Mutex
	refreshCalls int
	logoutCalls  int
	failRefresh  bool
	tokenSeq     int
}

func (f *fakeAuthServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "refresh_token", Value: "refresh-1", Path: "/", HttpOnly: true})
		json.NewEncoder(w).Encode(map[string]interface{}{
			"accessToken": f.nextToken(),
			"account":     map[string]interface{}{"id": 1, "email": "dev@example.com", "firstName": "Dana"},
		})
	})

	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.refreshCalls++
		fail := f.failRefresh
		f.mu.Unlock()

		cookie, err := r.Cookie("refresh_token")
		if fail || err != nil || cookie.Value == "" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "Session expired", "code": "INVALID_REFRESH"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"accessToken": f.nextToken()})
	})

	mux.HandleFunc("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer access-") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"id": 1, "email": "dev@example.com", "firstName": "Dana"})
	})

	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.logoutCalls++
		f.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "refresh_token", Value: "", Path: "/", MaxAge: -1})
		json.NewEncoder(w).Encode(map[string]string{"message": "Logged out"})
	})

	return mux
}

func (f *fakeAuthServer) nextToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenSeq++
	return fmt.Sprintf("access-%d", f.tokenSeq)
}

func (f *fakeAuthServer) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls
}

func (f *fakeAuthServer) logoutCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logoutCalls
}

func setup(t *testing.T, opts ...session.Option) (*session.Controller, *fakeAuthServer) {
	t.Helper()
	fake := &fakeAuthServer{}
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	c, err := session.New(server.URL, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	return c, fake
}

func TestLogin_EstablishesSession(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	if c.Authenticated() {
		t.Fatal("fresh controller should be unauthenticated")
	}
	if err := c.Login(ctx, "dev@example.com", "password123"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !c.Authenticated() {
		t.Fatal("expected authenticated after login")
	}
	if acct := c.Account(); acct == nil || acct.Email != "dev@example.com" {
		t.Fatalf("unexpected account: %+v", acct)
	}
}

func TestStart_NoCookie_StaysUnauthenticated(t *testing.T) {
	c, _ := setup(t)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if c.Authenticated() {
		t.Fatal("expected unauthenticated start without a refresh cookie")
	}
}

func TestStart_RestoresSessionFromCookie(t *testing.T) {
	fake := &fakeAuthServer{}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	// One shared jar stands in for the browser's cookie store surviving
	// a page reload.
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	client := &http.Client{Jar: jar}

	first, err := session.New(server.URL, session.WithHTTPClient(client))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer first.Close()
	if err := first.Login(context.Background(), "dev@example.com", "password123"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	second, err := session.New(server.URL, session.WithHTTPClient(client))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer second.Close()
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !second.Authenticated() {
		t.Fatal("expected session restored from cookie")
	}
	if acct := second.Account(); acct == nil || acct.FirstName != "Dana" {
		t.Fatalf("unexpected account: %+v", acct)
	}
}

func TestSilentRenewal_ReplacesToken(t *testing.T) {
	c, fake := setup(t, session.WithRenewInterval(20*time.Millisecond))

	if err := c.Login(context.Background(), "dev@example.com", "password123"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	before := c.AccessToken()

	deadline := time.Now().Add(2 * time.Second)
	for fake.refreshCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if fake.refreshCount() < 2 {
		t.Fatal("renewal timer never fired")
	}
	if c.AccessToken() == before || c.AccessToken() == "" {
		t.Fatalf("expected renewed token, still %q", c.AccessToken())
	}
}

func TestRenewalFailure_KeepsTokenStopsTimer(t *testing.T) {
	c, fake := setup(t, session.WithRenewInterval(20*time.Millisecond))

	if err := c.Login(context.Background(), "dev@example.com", "password123"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	token := c.AccessToken()

	fake.mu.Lock()
	fake.failRefresh = true
	fake.mu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	for fake.refreshCount() < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if fake.refreshCount() < 1 {
		t.Fatal("renewal timer never fired")
	}

	// Soft failure: token stays, loop stops.
	if c.AccessToken() != token {
		t.Fatal("failed renewal must not clear the held token")
	}
	settled := fake.refreshCount()
	time.Sleep(100 * time.Millisecond)
	if fake.refreshCount() != settled {
		t.Fatalf("renewal loop kept firing after failure: %d -> %d", settled, fake.refreshCount())
	}
}

func TestLogout_ClearsStateAndStopsTimer(t *testing.T) {
	c, fake := setup(t, session.WithRenewInterval(20*time.Millisecond))
	ctx := context.Background()

	if err := c.Login(ctx, "dev@example.com", "password123"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := c.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	if c.Authenticated() || c.Account() != nil {
		t.Fatal("expected all session state cleared")
	}
	if fake.logoutCount() != 1 {
		t.Fatalf("expected server-side logout, got %d calls", fake.logoutCount())
	}

	settled := fake.refreshCount()
	time.Sleep(100 * time.Millisecond)
	if fake.refreshCount() != settled {
		t.Fatal("renewal timer survived logout")
	}
}
