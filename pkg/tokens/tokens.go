package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token type discriminator carried inside the signed payload so a token from
// one signing domain cannot be replayed as the other even if the secrets
// were ever shared by mistake.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Verification failures. Callers surface all three uniformly as
// unauthenticated; the distinction exists for logging only.
var (
	ErrInvalidSignature = errors.New("token signature invalid")
	ErrExpired          = errors.New("token expired")
	ErrWrongType        = errors.New("token type mismatch")
)

const minSecretLen = 32

type Claims struct {
	Type  string `json:"typ"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Issuer mints and verifies tokens in two independent signing domains: a
// short-lived access domain and a long-lived refresh domain, each keyed by
// its own secret so compromise of one does not grant forgery in the other.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) (*Issuer, error) {
	if len(accessSecret) < minSecretLen {
		return nil, fmt.Errorf("access secret must be at least %d bytes", minSecretLen)
	}
	if len(refreshSecret) < minSecretLen {
		return nil, fmt.Errorf("refresh secret must be at least %d bytes", minSecretLen)
	}
	return &Issuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}, nil
}

func (i *Issuer) AccessTTL() time.Duration  { return i.accessTTL }
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

func (i *Issuer) SignAccess(accountID int64, email, role string) (string, error) {
	return sign(i.accessSecret, i.accessTTL, Claims{
		Type:  TypeAccess,
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: fmt.Sprintf("%d", accountID),
		},
	})
}

// SignRefresh mints a refresh token with a unique jti. Without it two
// sessions opened for the same account within the same second would produce
// byte-identical tokens and collide on the stored-credential unique index.
func (i *Issuer) SignRefresh(accountID int64) (string, error) {
	return sign(i.refreshSecret, i.refreshTTL, Claims{
		Type: TypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: fmt.Sprintf("%d", accountID),
			ID:      uuid.NewString(),
		},
	})
}

func (i *Issuer) VerifyAccess(token string) (*Claims, error) {
	return verify(token, i.accessSecret, TypeAccess)
}

func (i *Issuer) VerifyRefresh(token string) (*Claims, error) {
	return verify(token, i.refreshSecret, TypeRefresh)
}

// AccountID parses the subject claim back into an account id.
func (c *Claims) AccountID() (int64, error) {
	var id int64
	if _, err := fmt.Sscanf(c.Subject, "%d", &id); err != nil {
		return 0, fmt.Errorf("malformed subject claim: %w", err)
	}
	return id, nil
}

func sign(secret []byte, ttl time.Duration, claims Claims) (string, error) {
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.NotBefore = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func verify(tokenString string, secret []byte, wantType string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalidSignature
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrInvalidSignature
	}
	if claims.Type != wantType {
		return nil, ErrWrongType
	}
	return claims, nil
}
