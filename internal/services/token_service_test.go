package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewTokenService("secret", time.Hour)
	token, err := svc.Issue(42)
	require.NoError(t, err)

	id, err := svc.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)
}

func TestTokenRejectsWrongSecretAndExpiry(t *testing.T) {
	token, err := NewTokenService("secret", time.Hour).Issue(1)
	require.NoError(t, err)

	_, err = NewTokenService("other", time.Hour).ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := NewTokenService("secret", -time.Minute).Issue(1)
	require.NoError(t, err)
	_, err = NewTokenService("secret", time.Hour).ParseToken(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewTokenService("secret", time.Hour).ParseToken("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
