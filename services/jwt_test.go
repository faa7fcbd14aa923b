package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour)

	pair, err := svc.GenerateTokenPair("alice", "Alice Nguyen", "alice@example.com")
	require.NoError(t, err)
	assert.EqualValues(t, 3600, pair.ExpiresIn)

	claims, err := svc.VerifyJWTToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID)
	assert.Equal(t, "Alice Nguyen", claims.Name)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "lms_api", claims.Issuer)
}

func TestJWTRejectsBadTokens(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour)

	other, err := NewJWTService("other-secret", time.Hour).ToJWT("alice", "", "")
	require.NoError(t, err)
	_, err = svc.VerifyJWTToken(other)
	assert.Error(t, err, "wrong signing key")

	expired, err := NewJWTService("test-secret", -time.Minute).ToJWT("alice", "", "")
	require.NoError(t, err)
	_, err = svc.VerifyJWTToken(expired)
	assert.Error(t, err, "expired")

	noUser, err := svc.ToJWT("", "", "")
	require.NoError(t, err)
	_, err = svc.VerifyJWTToken(noUser)
	assert.Error(t, err, "missing user id")

	_, err = svc.VerifyJWTToken("not.a.token")
	assert.Error(t, err)
}

func TestExtractTokenFromHeader(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour)

	tok, err := svc.ExtractTokenFromHeader("Bearer abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", tok)

	tok, err = svc.ExtractTokenFromHeader("bearer  xyz ")
	require.NoError(t, err)
	assert.Equal(t, "xyz", tok)

	_, err = svc.ExtractTokenFromHeader("")
	assert.Error(t, err)
	_, err = svc.ExtractTokenFromHeader("Basic dXNlcg==")
	assert.Error(t, err)
}
