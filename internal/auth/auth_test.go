package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kseverny/interview-platform/internal/models"
)

func TestTokenRoundTrip(t *testing.T) {
	user := &models.User{ID: 42, Role: models.RoleAdmin, Username: "reviewer", IsActivated: true}

	token, err := SignToken(user, "test-secret", time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token, "test-secret")
	require.NoError(t, err)
	require.Equal(t, uint64(42), claims.UserID)
	require.Equal(t, models.RoleAdmin, claims.Role)
	require.Equal(t, "reviewer", claims.Username)
	require.True(t, claims.IsActivated)
}

func TestTokenWrongSecret(t *testing.T) {
	user := &models.User{ID: 1, Role: models.RoleUser}

	token, err := SignToken(user, "secret-a", time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(token, "secret-b")
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenExpired(t *testing.T) {
	user := &models.User{ID: 1, Role: models.RoleUser}

	token, err := SignToken(user, "secret", -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, "secret")
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.NotEqual(t, "correct horse battery staple", hash)

	require.True(t, VerifyPassword("correct horse battery staple", hash))
	require.False(t, VerifyPassword("wrong", hash))
}
