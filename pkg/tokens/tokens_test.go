package tokens

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAccessSecret  = "access-secret-0123456789abcdef0123456789"
	testRefreshSecret = "refresh-secret-0123456789abcdef012345678"
)

func newTestIssuer(t *testing.T, accessTTL, refreshTTL time.Duration) *Issuer {
	t.Helper()
	iss, err := NewIssuer(testAccessSecret, testRefreshSecret, accessTTL, refreshTTL)
	require.NoError(t, err)
	return iss
}

func TestNewIssuer_RejectsShortSecrets(t *testing.T) {
	t.Parallel()

	_, err := NewIssuer("short", testRefreshSecret, time.Minute, time.Hour)
	assert.Error(t, err)

	_, err = NewIssuer(testAccessSecret, "short", time.Minute, time.Hour)
	assert.Error(t, err)
}

func TestSignAccess_VerifyAccess_RoundTrip(t *testing.T) {
	t.Parallel()

	iss := newTestIssuer(t, 15*time.Minute, 30*24*time.Hour)

	tok, err := iss.SignAccess(42, "dev@example.com", "developer")
	require.NoError(t, err)

	claims, err := iss.VerifyAccess(tok)
	require.NoError(t, err)

	id, err := claims.AccountID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, "dev@example.com", claims.Email)
	assert.Equal(t, "developer", claims.Role)
	assert.Equal(t, TypeAccess, claims.Type)
}

func TestVerifyAccess_RefreshToken_WrongType(t *testing.T) {
	t.Parallel()

	// Same secret in both domains so only the type discriminator can fail.
	iss, err := NewIssuer(testAccessSecret, testAccessSecret, time.Minute, time.Hour)
	require.NoError(t, err)

	refresh, err := iss.SignRefresh(7)
	require.NoError(t, err)

	_, err = iss.VerifyAccess(refresh)
	assert.ErrorIs(t, err, ErrWrongType)
}

func TestVerifyRefresh_AccessToken_CrossDomainSignature(t *testing.T) {
	t.Parallel()

	iss := newTestIssuer(t, time.Minute, time.Hour)

	access, err := iss.SignAccess(7, "a@b.com", "client")
	require.NoError(t, err)

	// Different secrets per domain: the signature check fails before the
	// type discriminator is ever consulted.
	_, err = iss.VerifyRefresh(access)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyAccess_Expired(t *testing.T) {
	t.Parallel()

	iss := newTestIssuer(t, -time.Second, time.Hour)

	tok, err := iss.SignAccess(1, "a@b.com", "client")
	require.NoError(t, err)

	_, err = iss.VerifyAccess(tok)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerifyAccess_TamperedToken(t *testing.T) {
	t.Parallel()

	iss := newTestIssuer(t, time.Minute, time.Hour)

	tok, err := iss.SignAccess(1, "a@b.com", "client")
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	_, err = iss.VerifyAccess(tampered)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyAccess_WrongSecret(t *testing.T) {
	t.Parallel()

	iss := newTestIssuer(t, time.Minute, time.Hour)
	other, err := NewIssuer("another-access-secret-0123456789abcdef00", testRefreshSecret, time.Minute, time.Hour)
	require.NoError(t, err)

	tok, err := iss.SignAccess(1, "a@b.com", "client")
	require.NoError(t, err)

	_, err = other.VerifyAccess(tok)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestSignRefresh_UniquePerCall(t *testing.T) {
	t.Parallel()

	iss := newTestIssuer(t, time.Minute, time.Hour)

	first, err := iss.SignRefresh(42)
	require.NoError(t, err)
	second, err := iss.SignRefresh(42)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)

	claims, err := iss.VerifyRefresh(first)
	require.NoError(t, err)
	assert.NotEmpty(t, claims.ID)
}
