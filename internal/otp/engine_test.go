package otp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/devlance/auth-service/internal/domain"
)

// ---------- Mocks ----------

type mockMailer struct {
	lastTo   string
	lastCode string
	sent     int
	sendErr  error
}

func (m *mockMailer) SendOTP(email, code string, _ time.Duration) error {
	m.sent++
	if m.sendErr != nil {
		return m.sendErr
	}
	m.lastTo = email
	m.lastCode = code
	return nil
}

type mockOTPRepo struct {
	nextID int64
	codes  []*domain.OneTimeCode
	now    func() time.Time
}

func newMockOTPRepo(now func() time.Time) *mockOTPRepo {
	return &mockOTPRepo{nextID: 1, now: now}
}

func (m *mockOTPRepo) Save(_ context.Context, code *domain.OneTimeCode) error {
	kept := m.codes[:0]
	for _, c := range m.codes {
		if c.Email == code.Email && c.Purpose == code.Purpose && !c.Used {
			continue
		}
		kept = append(kept, c)
	}
	m.codes = kept

	code.ID = m.nextID
	m.nextID++
	code.CreatedAt = m.now()
	m.codes = append(m.codes, code)
	return nil
}

func (m *mockOTPRepo) FindUsable(_ context.Context, email, purpose string) (*domain.OneTimeCode, error) {
	var newest *domain.OneTimeCode
	for _, c := range m.codes {
		if c.Email != email || c.Purpose != purpose || c.Used {
			continue
		}
		if !m.now().Before(c.ExpiresAt) {
			continue
		}
		if newest == nil || c.ID > newest.ID {
			newest = c
		}
	}
	if newest == nil {
		return nil, nil
	}
	copied := *newest
	return &copied, nil
}

func (m *mockOTPRepo) IncrementAttempts(_ context.Context, id int64) (int, error) {
	for _, c := range m.codes {
		if c.ID == id {
			c.Attempts++
			return c.Attempts, nil
		}
	}
	return 0, errors.New("code not found")
}

func (m *mockOTPRepo) MarkUsed(_ context.Context, id int64) (bool, error) {
	for _, c := range m.codes {
		if c.ID == id && !c.Used {
			c.Used = true
			return true, nil
		}
	}
	return false, nil
}

func (m *mockOTPRepo) DeleteExpired(context.Context) (int64, error) { return 0, nil }

func (m *mockOTPRepo) usableCount(email, purpose string) int {
	n := 0
	for _, c := range m.codes {
		if c.Email == email && c.Purpose == purpose && c.Usable(m.now()) {
			n++
		}
	}
	return n
}

// ---------- Test setup ----------

func newTestEngine(t *testing.T) (*Engine, *mockOTPRepo, *mockMailer, *time.Time) {
	t.Helper()
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }

	repo := newMockOTPRepo(clock)
	mail := &mockMailer{}
	engine := NewEngine(repo, mail, 10*time.Minute)
	engine.now = clock
	return engine, repo, mail, &now
}

// ---------- Tests ----------

func TestIssue_SecondIssueInvalidatesFirst(t *testing.T) {
	engine, repo, mail, _ := newTestEngine(t)
	ctx := context.Background()

	if err := engine.Issue(ctx, "a@b.com", domain.OTPPurposeLogin); err != nil {
		t.Fatalf("first issue: %v", err)
	}
	firstCode := mail.lastCode

	if err := engine.Issue(ctx, "a@b.com", domain.OTPPurposeLogin); err != nil {
		t.Fatalf("second issue: %v", err)
	}

	if n := repo.usableCount("a@b.com", domain.OTPPurposeLogin); n != 1 {
		t.Fatalf("expected exactly 1 usable code, got %d", n)
	}

	// The first code is gone; only the latest verifies.
	if err := engine.Verify(ctx, "a@b.com", domain.OTPPurposeLogin, firstCode); err == nil && firstCode != mail.lastCode {
		t.Fatal("expected stale code to be rejected")
	}
}

func TestIssue_DifferentPurposesCoexist(t *testing.T) {
	engine, repo, _, _ := newTestEngine(t)
	ctx := context.Background()

	if err := engine.Issue(ctx, "a@b.com", domain.OTPPurposeLogin); err != nil {
		t.Fatalf("login issue: %v", err)
	}
	if err := engine.Issue(ctx, "a@b.com", domain.OTPPurposeSignup); err != nil {
		t.Fatalf("signup issue: %v", err)
	}

	if n := repo.usableCount("a@b.com", domain.OTPPurposeLogin); n != 1 {
		t.Fatalf("login purpose: expected 1 usable code, got %d", n)
	}
	if n := repo.usableCount("a@b.com", domain.OTPPurposeSignup); n != 1 {
		t.Fatalf("signup purpose: expected 1 usable code, got %d", n)
	}
}

func TestIssue_DispatchFailureIsHardError(t *testing.T) {
	engine, _, mail, _ := newTestEngine(t)
	mail.sendErr = errors.New("smtp down")

	err := engine.Issue(context.Background(), "a@b.com", domain.OTPPurposeLogin)
	if err == nil {
		t.Fatal("expected error when dispatch fails")
	}
}

func TestVerify_SucceedsExactlyOnce(t *testing.T) {
	engine, _, mail, _ := newTestEngine(t)
	ctx := context.Background()

	if err := engine.Issue(ctx, "a@b.com", domain.OTPPurposeSignup); err != nil {
		t.Fatalf("issue: %v", err)
	}
	code := mail.lastCode

	if err := engine.Verify(ctx, "a@b.com", domain.OTPPurposeSignup, code); err != nil {
		t.Fatalf("first verify: %v", err)
	}

	// Idempotent rejection, not a crash: the consumed code reads as expired.
	err := engine.Verify(ctx, "a@b.com", domain.OTPPurposeSignup, code)
	if !errors.Is(err, domain.ErrOTPExpired) {
		t.Fatalf("second verify: expected ErrOTPExpired, got %v", err)
	}
}

func TestVerify_WrongCode(t *testing.T) {
	engine, _, mail, _ := newTestEngine(t)
	ctx := context.Background()

	if err := engine.Issue(ctx, "a@b.com", domain.OTPPurposeLogin); err != nil {
		t.Fatalf("issue: %v", err)
	}

	wrong := "000000"
	if wrong == mail.lastCode {
		wrong = "000001"
	}

	err := engine.Verify(ctx, "a@b.com", domain.OTPPurposeLogin, wrong)
	if !errors.Is(err, domain.ErrOTPInvalid) {
		t.Fatalf("expected ErrOTPInvalid, got %v", err)
	}
}

func TestVerify_AttemptExhaustion(t *testing.T) {
	engine, _, mail, _ := newTestEngine(t)
	ctx := context.Background()

	if err := engine.Issue(ctx, "a@b.com", domain.OTPPurposeLogin); err != nil {
		t.Fatalf("issue: %v", err)
	}
	code := mail.lastCode

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	for i := 0; i < domain.MaxOTPAttempts; i++ {
		if err := engine.Verify(ctx, "a@b.com", domain.OTPPurposeLogin, wrong); !errors.Is(err, domain.ErrOTPInvalid) {
			t.Fatalf("attempt %d: expected ErrOTPInvalid, got %v", i+1, err)
		}
	}

	// 6th attempt with the CORRECT code still fails: the counter wins.
	err := engine.Verify(ctx, "a@b.com", domain.OTPPurposeLogin, code)
	if !errors.Is(err, domain.ErrOTPTooManyAttempts) {
		t.Fatalf("expected ErrOTPTooManyAttempts, got %v", err)
	}
}

func TestVerify_Expired(t *testing.T) {
	engine, _, mail, now := newTestEngine(t)
	ctx := context.Background()

	if err := engine.Issue(ctx, "a@b.com", domain.OTPPurposeLogin); err != nil {
		t.Fatalf("issue: %v", err)
	}
	code := mail.lastCode

	*now = now.Add(11 * time.Minute)

	err := engine.Verify(ctx, "a@b.com", domain.OTPPurposeLogin, code)
	if !errors.Is(err, domain.ErrOTPExpired) {
		t.Fatalf("expected ErrOTPExpired, got %v", err)
	}
}

func TestVerify_NoCodeIssued(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	err := engine.Verify(context.Background(), "nobody@b.com", domain.OTPPurposeLogin, "123456")
	if !errors.Is(err, domain.ErrOTPExpired) {
		t.Fatalf("expected ErrOTPExpired, got %v", err)
	}
}

func TestGenerateCode_SixDigits(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := generateCode()
		if err != nil {
			t.Fatalf("generateCode: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("expected 6 digits, got %q", code)
		}
		if code[0] == '0' {
			t.Fatalf("code %q outside [100000,999999]", code)
		}
	}
}
