package service

import (
	"context"
	"fmt"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/devlance/auth-service/internal/domain"
	"github.com/devlance/auth-service/internal/otp"
	"github.com/devlance/auth-service/internal/ratelimit"
	"github.com/devlance/auth-service/internal/repo/postgres"
	"github.com/devlance/auth-service/pkg/events"
	"github.com/devlance/auth-service/pkg/logger"
	"github.com/devlance/auth-service/pkg/tokens"
)

// SessionMeta is the best-effort request context recorded on each refresh
// credential.
type SessionMeta struct {
	UserAgent string
	IP        string
}

// AuthResult is what a session-establishing flow hands back to the HTTP
// layer. RefreshToken travels only inside the HTTP-only cookie.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	RefreshTTL   time.Duration
	Account      *domain.Account
}

type CheckEmailResult struct {
	Exists    bool
	FirstName string
}

type AuthService interface {
	CheckEmail(ctx context.Context, req *domain.CheckEmailRequest, clientIP string) (*CheckEmailResult, error)
	Login(ctx context.Context, req *domain.LoginRequest, meta SessionMeta) (*AuthResult, error)
	SendOTP(ctx context.Context, req *domain.SendOTPRequest) (expiresIn time.Duration, err error)
	VerifyOTP(ctx context.Context, req *domain.VerifyOTPRequest, meta SessionMeta) (*AuthResult, error)
	Register(ctx context.Context, req *domain.RegisterRequest, meta SessionMeta) (*AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (accessToken string, err error)
	Logout(ctx context.Context, refreshToken string) error
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
}

// TokenIssuer is the slice of pkg/tokens the orchestrator needs.
// *tokens.Issuer satisfies it.
type TokenIssuer interface {
	SignAccess(accountID int64, email, role string) (string, error)
	SignRefresh(accountID int64) (string, error)
	VerifyRefresh(token string) (*tokens.Claims, error)
	RefreshTTL() time.Duration
}

type authService struct {
	accounts  postgres.AccountRepository
	refresh   postgres.RefreshRepository
	otpEngine *otp.Engine
	issuer    TokenIssuer
	limiter   *ratelimit.Limiter
	publisher events.Publisher
}

func NewAuthService(
	accounts postgres.AccountRepository,
	refresh postgres.RefreshRepository,
	otpEngine *otp.Engine,
	issuer TokenIssuer,
	limiter *ratelimit.Limiter,
	publisher events.Publisher,
) AuthService {
	return &authService{
		accounts:  accounts,
		refresh:   refresh,
		otpEngine: otpEngine,
		issuer:    issuer,
		limiter:   limiter,
		publisher: publisher,
	}
}

// CheckEmail reports only existence and first name. It never reveals
// whether a password is set, to keep enumeration refinement off the table.
func (s *authService) CheckEmail(ctx context.Context, req *domain.CheckEmailRequest, clientIP string) (*CheckEmailResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, &domain.ValidationError{Err: err}
	}

	if d := s.limiter.CheckEmailProbe(ctx, clientIP); !d.Allowed {
		return nil, &domain.RateLimitError{RetryAfter: d.RetryAfter}
	}

	acc, err := s.accounts.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	if acc == nil {
		return &CheckEmailResult{Exists: false}, nil
	}
	return &CheckEmailResult{Exists: true, FirstName: acc.FirstName}, nil
}

func (s *authService) Login(ctx context.Context, req *domain.LoginRequest, meta SessionMeta) (*AuthResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, &domain.ValidationError{Err: err}
	}

	acc, err := s.accounts.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	if acc == nil {
		return nil, domain.ErrAccountNotFound
	}
	if !acc.IsActive {
		return nil, domain.ErrAccountInactive
	}
	if !acc.HasPassword() {
		return nil, domain.ErrNoPasswordSet
	}

	match, err := argon2id.ComparePasswordAndHash(req.Password, acc.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !match {
		return nil, domain.ErrInvalidCredentials
	}

	result, err := s.establishSession(ctx, acc, meta)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.AccountLogin, events.AccountLoginEvent{
		AccountID: acc.ID,
		Email:     acc.Email,
		Method:    "password",
		LoginAt:   time.Now(),
	})
	return result, nil
}

func (s *authService) SendOTP(ctx context.Context, req *domain.SendOTPRequest) (time.Duration, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return 0, &domain.ValidationError{Err: err}
	}

	// Hourly issuance cap first, then the resend cooldown. Both consume a
	// slot even when the other denies; a denied caller retries later anyway.
	if d := s.limiter.CheckOTPSend(ctx, req.Email); !d.Allowed {
		return 0, &domain.RateLimitError{RetryAfter: d.RetryAfter}
	}
	if d := s.limiter.CheckOTPResend(ctx, req.Email); !d.Allowed {
		return 0, &domain.RateLimitError{RetryAfter: d.RetryAfter}
	}

	if err := s.otpEngine.Issue(ctx, req.Email, req.Type); err != nil {
		return 0, err
	}

	s.publish(ctx, events.OTPSent, events.OTPSentEvent{
		Email:   req.Email,
		Purpose: req.Type,
		SentAt:  time.Now(),
	})
	return s.otpEngine.TTL(), nil
}

func (s *authService) VerifyOTP(ctx context.Context, req *domain.VerifyOTPRequest, meta SessionMeta) (*AuthResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, &domain.ValidationError{Err: err}
	}

	if err := s.otpEngine.Verify(ctx, req.Email, req.Type, req.OTP); err != nil {
		return nil, err
	}

	if req.Type == domain.OTPPurposeSignup {
		return s.registerAccount(ctx, &domain.Account{
			Email: req.Email,
			Role:  domain.RoleClient,
		}, meta)
	}

	acc, err := s.accounts.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	if acc == nil {
		return nil, domain.ErrAccountNotFound
	}
	if !acc.IsActive {
		return nil, domain.ErrAccountInactive
	}

	result, err := s.establishSession(ctx, acc, meta)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.AccountLogin, events.AccountLoginEvent{
		AccountID: acc.ID,
		Email:     acc.Email,
		Method:    "otp",
		LoginAt:   time.Now(),
	})
	return result, nil
}

func (s *authService) Register(ctx context.Context, req *domain.RegisterRequest, meta SessionMeta) (*AuthResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, &domain.ValidationError{Err: err}
	}

	existing, err := s.accounts.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing account: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrDuplicateEmail
	}

	passwordHash, err := argon2id.CreateHash(req.Password, argon2id.DefaultParams)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	return s.registerAccount(ctx, &domain.Account{
		Email:        req.Email,
		PasswordHash: passwordHash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Phone:        req.Phone,
		Role:         req.Role,
	}, meta)
}

// registerAccount runs the registration saga: create the account, then mint
// and persist credentials. If credential issuance fails for any reason the
// just-created account is deleted again, so a transient signing or storage
// failure cannot leave a permanently-duplicate-blocking account behind.
func (s *authService) registerAccount(ctx context.Context, acc *domain.Account, meta SessionMeta) (*AuthResult, error) {
	created, err := s.accounts.Create(ctx, acc)
	if err != nil {
		return nil, err
	}

	result, err := s.establishSession(ctx, created, meta)
	if err != nil {
		// Compensating action, best-effort: a failed rollback is logged and
		// the original error surfaces, never the delete's.
		if delErr := s.accounts.Delete(ctx, created.ID); delErr != nil {
			logger.ErrorContext(ctx, "registration rollback failed", "error", delErr, "account_id", created.ID)
		}
		return nil, err
	}

	s.publish(ctx, events.AccountRegistered, events.AccountRegisteredEvent{
		AccountID: created.ID,
		Email:     created.Email,
		Role:      created.Role,
		CreatedAt: created.CreatedAt,
	})
	return result, nil
}

// establishSession mints the access/refresh pair, persists the refresh
// credential, and touches last-login.
func (s *authService) establishSession(ctx context.Context, acc *domain.Account, meta SessionMeta) (*AuthResult, error) {
	accessToken, err := s.issuer.SignAccess(acc.ID, acc.Email, acc.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refreshToken, err := s.issuer.SignRefresh(acc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	cred := &domain.RefreshCredential{
		AccountID: acc.ID,
		Token:     refreshToken,
		UserAgent: meta.UserAgent,
		IP:        meta.IP,
		ExpiresAt: time.Now().Add(s.issuer.RefreshTTL()),
	}
	if err := s.refresh.Save(ctx, cred); err != nil {
		return nil, fmt.Errorf("failed to persist refresh credential: %w", err)
	}

	if err := s.accounts.TouchLastLogin(ctx, acc.ID); err != nil {
		logger.WarnContext(ctx, "failed to update last login", "error", err, "account_id", acc.ID)
	}

	return &AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		RefreshTTL:   s.issuer.RefreshTTL(),
		Account:      acc,
	}, nil
}

// Refresh exchanges a valid refresh credential for a new access token. The
// refresh token itself is not rotated; a deliberate trade-off, revisit
// before the threat model changes.
func (s *authService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.issuer.VerifyRefresh(refreshToken)
	if err != nil {
		// Signature, expiry, and type failures are distinguished here for
		// logging only; the caller sees one uniform denial.
		logger.DebugContext(ctx, "refresh token rejected", "reason", err)
		return "", domain.ErrRefreshInvalid
	}

	cred, err := s.refresh.FindByToken(ctx, refreshToken)
	if err != nil {
		return "", fmt.Errorf("failed to look up refresh credential: %w", err)
	}
	if cred == nil {
		return "", domain.ErrRefreshInvalid
	}
	// The stored expiry is checked independently of the signature's own
	// expiry; key rotation or clock skew can make the two disagree.
	if cred.Expired(time.Now()) {
		return "", domain.ErrRefreshInvalid
	}

	accountID, err := claims.AccountID()
	if err != nil {
		return "", domain.ErrRefreshInvalid
	}

	acc, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return "", fmt.Errorf("failed to load account: %w", err)
	}
	if acc == nil || !acc.IsActive {
		return "", domain.ErrRefreshInvalid
	}

	accessToken, err := s.issuer.SignAccess(acc.ID, acc.Email, acc.Role)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return accessToken, nil
}

// Logout revokes the refresh credential. Idempotent: an absent credential
// and a storage hiccup both report success, since the client clears its
// cookie either way.
func (s *authService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if err := s.refresh.DeleteByToken(ctx, refreshToken); err != nil {
		logger.ErrorContext(ctx, "failed to delete refresh credential on logout", "error", err)
	}

	// The token may be garbage; only a verifiable one yields an account id
	// worth announcing.
	if claims, err := s.issuer.VerifyRefresh(refreshToken); err == nil {
		if accountID, err := claims.AccountID(); err == nil {
			s.publish(ctx, events.AccountLogout, events.AccountLogoutEvent{
				AccountID: accountID,
				LogoutAt:  time.Now(),
			})
		}
	}
	return nil
}

func (s *authService) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	acc, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if acc == nil {
		return nil, domain.ErrAccountNotFound
	}
	return acc, nil
}

// publish is fire-and-forget; event delivery never fails an auth flow.
func (s *authService) publish(ctx context.Context, subject string, data interface{}) {
	if err := s.publisher.Publish(ctx, subject, data); err != nil {
		logger.WarnContext(ctx, "failed to publish event", "subject", subject, "error", err)
	}
}
