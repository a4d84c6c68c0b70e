package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse(t *testing.T) {
	m := NewManager("secret", "optifish", time.Hour)

	token, err := m.GenerateToken(42, "budi", "buyer")
	require.NoError(t, err)

	claims, err := m.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserId)
	assert.Equal(t, "budi", claims.Username)
	assert.Equal(t, "42", claims.Subject)
}

func TestParseRejectsForeignTokens(t *testing.T) {
	signer := NewManager("secret", "optifish", time.Hour)
	token, err := signer.GenerateToken(7, "", "")
	require.NoError(t, err)

	_, err = NewManager("other-secret", "optifish", time.Hour).ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewManager("secret", "someone-else", time.Hour).ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsExpired(t *testing.T) {
	m := NewManager("secret", "optifish", time.Minute)
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := m.GenerateToken(7, "", "")
	require.NoError(t, err)

	_, err = NewManager("secret", "optifish", time.Minute).ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
