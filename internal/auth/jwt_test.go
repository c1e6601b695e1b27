package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gotest.tools/v3/assert"

	"github.com/lorawan-node/pv-node/internal/config"
	"github.com/lorawan-node/pv-node/internal/models"
)

func newTestManager(secret string) *JWTManager {
	return NewJWTManager(&config.JWTConfig{
		Secret:          secret,
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
}

func TestTokenPairRoundTrip(t *testing.T) {
	m := newTestManager("test-secret")

	user := &models.User{
		ID:      uuid.New(),
		Email:   "operator@example.com",
		IsAdmin: true,
	}

	access, refresh, err := m.GenerateTokenPair(user)
	assert.NilError(t, err)
	assert.Assert(t, access != refresh)

	claims, err := m.ValidateToken(access)
	assert.NilError(t, err)
	assert.Equal(t, claims.UserID, user.ID)
	assert.Equal(t, claims.Email, user.Email)
	assert.Equal(t, claims.IsAdmin, true)

	userID, err := m.ValidateRefreshToken(refresh)
	assert.NilError(t, err)
	assert.Equal(t, userID, user.ID)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	user := &models.User{ID: uuid.New(), Email: "operator@example.com"}

	access, _, err := newTestManager("secret-a").GenerateTokenPair(user)
	assert.NilError(t, err)

	_, err = newTestManager("secret-b").ValidateToken(access)
	assert.Assert(t, err != nil)
}

func TestValidateExpiredToken(t *testing.T) {
	m := NewJWTManager(&config.JWTConfig{
		Secret:          "test-secret",
		AccessTokenTTL:  -time.Minute,
		RefreshTokenTTL: -time.Minute,
	})

	user := &models.User{ID: uuid.New(), Email: "operator@example.com"}
	access, refresh, err := m.GenerateTokenPair(user)
	assert.NilError(t, err)

	_, err = m.ValidateToken(access)
	assert.Assert(t, err != nil)

	_, err = m.ValidateRefreshToken(refresh)
	assert.Assert(t, err != nil)
}

func TestValidateGarbageToken(t *testing.T) {
	m := newTestManager("test-secret")

	_, err := m.ValidateToken("not.a.token")
	assert.Assert(t, err != nil)

	_, err = m.ValidateRefreshToken("")
	assert.Assert(t, err != nil)
}
