package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	m := NewTokenManager("test-secret")

	token, err := m.Issue("alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	username, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", username)
}

func TestTokenWrongSecret(t *testing.T) {
	token, err := NewTokenManager("secret-a").Issue("alice")
	require.NoError(t, err)

	_, err = NewTokenManager("secret-b").Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenGarbage(t *testing.T) {
	m := NewTokenManager("test-secret")
	for _, token := range []string{"", "garbage", "a.b.c"} {
		_, err := m.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken, token)
	}
}
