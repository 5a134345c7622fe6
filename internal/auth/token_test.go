package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/auth-service/internal/domain"
)

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time { return c.now }

func newTestTokenManager() (*TokenManager, *stepClock) {
	clock := &stepClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	return NewTokenManager("test-secret", nil, clock.Now), clock
}

func TestTokenManager_RoundTrip(t *testing.T) {
	tm, _ := newTestTokenManager()

	for _, purpose := range []domain.TokenPurpose{
		domain.PurposeEmailConfirmation,
		domain.PurposeSignInLink,
		domain.PurposePasswordReset,
	} {
		token, err := tm.Issue("U1", purpose, DefaultTokenTTL, "")
		require.NoError(t, err)

		claims, err := tm.Verify(token, purpose)
		require.NoError(t, err)
		assert.Equal(t, &domain.TokenClaims{SubjectID: "U1", Purpose: purpose}, claims)
	}
}

func TestTokenManager_EmailChangeCarriesOnlyNewAddress(t *testing.T) {
	tm, _ := newTestTokenManager()

	token, err := tm.Issue("U1", domain.PurposeEmailChange, DefaultTokenTTL, "new@example.com")
	require.NoError(t, err)

	claims, err := tm.Verify(token, domain.PurposeEmailChange)
	require.NoError(t, err)
	assert.Equal(t, "U1", claims.SubjectID)
	assert.Equal(t, "new@example.com", claims.Auxiliary)
	assert.Equal(t, domain.PurposeEmailChange, claims.Purpose)
}

func TestTokenManager_ExpiredTokenRejected(t *testing.T) {
	tm, clock := newTestTokenManager()

	token, err := tm.Issue("U1", domain.PurposePasswordReset, DefaultTokenTTL, "")
	require.NoError(t, err)

	clock.now = clock.now.Add(14 * time.Minute)
	_, err = tm.Verify(token, domain.PurposePasswordReset)
	require.NoError(t, err)

	clock.now = clock.now.Add(2 * time.Minute)
	_, err = tm.Verify(token, domain.PurposePasswordReset)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenManager_PurposeMismatchRejected(t *testing.T) {
	tm, _ := newTestTokenManager()

	token, err := tm.Issue("U1", domain.PurposeResendConfirmation, DefaultTokenTTL, "")
	require.NoError(t, err)

	_, err = tm.Verify(token, domain.PurposeEmailConfirmation)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	claims, err := tm.Verify(token, "")
	require.NoError(t, err)
	assert.Equal(t, domain.PurposeResendConfirmation, claims.Purpose)
}

func TestTokenManager_TamperingRejected(t *testing.T) {
	tm, _ := newTestTokenManager()

	token, err := tm.Issue("U1", domain.PurposeEmailChange, DefaultTokenTTL, "new@example.com")
	require.NoError(t, err)
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	mutate := func(s string, i int) string {
		b := []byte(s)
		if b[i] == 'A' {
			b[i] = 'B'
		} else {
			b[i] = 'A'
		}
		return string(b)
	}

	cases := map[string]string{
		"header":         strings.Join([]string{mutate(parts[0], 3), parts[1], parts[2]}, "."),
		"payload":        strings.Join([]string{parts[0], mutate(parts[1], len(parts[1])/2), parts[2]}, "."),
		"signature head": strings.Join([]string{parts[0], parts[1], mutate(parts[2], 0)}, "."),
		"signature tail": strings.Join([]string{parts[0], parts[1], mutate(parts[2], len(parts[2])-1)}, "."),
	}
	for name, tampered := range cases {
		_, err := tm.Verify(tampered, domain.PurposeEmailChange)
		assert.ErrorIs(t, err, ErrTokenInvalid, name)
	}
}

func TestTokenManager_ForeignSecretRejected(t *testing.T) {
	tm, clock := newTestTokenManager()
	other := NewTokenManager("another-secret", nil, clock.Now)

	token, err := other.Issue("U1", domain.PurposeSignInLink, DefaultTokenTTL, "")
	require.NoError(t, err)

	_, err = tm.Verify(token, domain.PurposeSignInLink)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenManager_GarbageRejected(t *testing.T) {
	tm, _ := newTestTokenManager()

	for _, raw := range []string{"", "abc", "a.b.c"} {
		_, err := tm.Verify(raw, "")
		assert.ErrorIs(t, err, ErrTokenInvalid, raw)
	}
}
