package util

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewThrottled_ClampsRetryAfter(t *testing.T) {
	err := NewThrottled("/errors/user/limiter/too-many-requests", "too many", 0)

	de := ToDomainError(err)
	require.NotNil(t, de)
	assert.Equal(t, KindThrottled, de.Kind)
	assert.Equal(t, http.StatusTooManyRequests, de.HTTPStatus)
	assert.Equal(t, 1, de.RetryAfter)
}

func TestToDomainError_WrapsUnknownAsInfrastructure(t *testing.T) {
	cause := errors.New("boom")

	de := ToDomainError(cause)
	assert.Equal(t, KindInfrastructure, de.Kind)
	assert.Equal(t, http.StatusInternalServerError, de.HTTPStatus)
	assert.ErrorIs(t, de, cause)
}

func TestToDomainError_FindsWrappedDomainError(t *testing.T) {
	inner := NewConflict("/errors/user/sign-up/email-taken", "taken")
	wrapped := fmt.Errorf("create: %w", inner)

	de := ToDomainError(wrapped)
	assert.Equal(t, KindConflict, de.Kind)
	assert.Equal(t, http.StatusConflict, de.HTTPStatus)
	assert.True(t, IsKind(wrapped, KindConflict))
	assert.False(t, IsKind(wrapped, KindNotFound))
}

func TestToDomainError_Nil(t *testing.T) {
	assert.Nil(t, ToDomainError(nil))
}
