package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homevest/backend/internal/user"
)

func newTestJWTManager(t *testing.T) JWTManagerInterface {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	return NewJWTManager()
}

func TestAccessTokenRoundTrip(t *testing.T) {
	manager := newTestJWTManager(t)

	token, err := manager.GenerateAccessJWT("user-1", user.RoleAdmin, time.Minute)
	require.NoError(t, err)

	userID, role, err := manager.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
	assert.Equal(t, user.RoleAdmin, role)
}

func TestAccessTokenExpired(t *testing.T) {
	manager := newTestJWTManager(t)

	token, err := manager.GenerateAccessJWT("user-1", user.RoleInvestor, -time.Minute)
	require.NoError(t, err)

	_, _, err = manager.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrExpiredJWTToken)
}

func TestAccessTokenGarbage(t *testing.T) {
	manager := newTestJWTManager(t)

	_, _, err := manager.ValidateAccessToken("not-a-token")
	assert.Error(t, err)
}

func TestRefreshTokenBoundToHashToken(t *testing.T) {
	manager := newTestJWTManager(t)

	token, err := manager.GenerateRefreshJWT("user-1", "hash-token-a", time.Hour)
	require.NoError(t, err)

	require.NoError(t, manager.ValidateRefreshToken(token, "hash-token-a"))

	// A rotated hash token invalidates every refresh token minted before it.
	assert.ErrorIs(t, manager.ValidateRefreshToken(token, "hash-token-b"), ErrInvalidJWTToken)

	userID, err := manager.ExtractUserIDFromRefreshToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestSessionTokenLifecycle(t *testing.T) {
	sm := NewSessionManager()

	token, err := sm.GenerateSessionToken("user-1", time.Minute)
	require.NoError(t, err)

	userID, err := sm.VerifySessionToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	sm.DeleteSessionToken(token)
	_, err = sm.VerifySessionToken(token)
	assert.ErrorIs(t, err, ErrInvalidSessionToken)
}

func TestSessionTokenExpiry(t *testing.T) {
	sm := NewSessionManager()

	token, err := sm.GenerateSessionToken("user-1", -time.Second)
	require.NoError(t, err)

	_, err = sm.VerifySessionToken(token)
	assert.ErrorIs(t, err, ErrExpiredSessionToken)
}

func TestSessionTokenCleanupDropsOnlyExpired(t *testing.T) {
	sm := &SessionManager{pending: make(map[string]pendingLogin)}

	expired, err := sm.GenerateSessionToken("user-1", -time.Second)
	require.NoError(t, err)
	live, err := sm.GenerateSessionToken("user-2", time.Minute)
	require.NoError(t, err)

	sm.purgeExpired(time.Now())

	_, err = sm.VerifySessionToken(expired)
	assert.ErrorIs(t, err, ErrInvalidSessionToken)

	userID, err := sm.VerifySessionToken(live)
	require.NoError(t, err)
	assert.Equal(t, "user-2", userID)
}
