package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacie_back_end/internal/models"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	assert.True(t, IsArgon2Hash(hash))

	ok, err := VerifyPassword("s3cret-pass", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("wrong", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = VerifyPassword("x", "$2a$10$bcrypt")
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestJWTRoundTrip(t *testing.T) {
	user := models.User{ID: "u-1", Email: "a@b.in", Role: models.RoleAdmin}
	token, issued, err := GenerateJWT("secret", user, time.Minute)
	require.NoError(t, err)

	claims, err := ParseJWT("secret", token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.Equal(t, issued.ID, claims.ID)

	_, err = ParseJWT("other", token)
	assert.Error(t, err)
}

func TestJWTExpired(t *testing.T) {
	token, _, err := GenerateJWT("secret", models.User{ID: "u"}, -time.Minute)
	require.NoError(t, err)
	_, err = ParseJWT("secret", token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestRefreshToken(t *testing.T) {
	rt, err := NewRefreshToken("u-1")
	require.NoError(t, err)

	parsed, err := ParseRefreshToken(rt.String())
	require.NoError(t, err)
	assert.Equal(t, rt, parsed)
	assert.Equal(t, rt.Hash(), parsed.Hash())

	_, err = ParseRefreshToken("garbage")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	_, err = ParseRefreshToken("u.notauuid.secret")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}
