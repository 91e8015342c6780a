// internal/auth/session_test.go
package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jason-s-yu/arena/internal/connect"
)

func TestUserTokenRoundTrip(t *testing.T) {
	Init()
	userID := uuid.New()

	token, err := CreateUserJWT(userID, connect.EnvNative)
	require.NoError(t, err)

	identity, err := AuthenticateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, userID, identity.ID)
	assert.Equal(t, RoleUser, identity.Role)
	assert.Equal(t, connect.EnvNative, identity.Env)
}

func TestHubTokenRoundTrip(t *testing.T) {
	Init()
	hubID := uuid.New()

	token, err := CreateHubJWT(hubID)
	require.NoError(t, err)

	identity, err := AuthenticateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, hubID, identity.ID)
	assert.Equal(t, RoleHub, identity.Role)
}

func TestAuthenticateRejectsGarbage(t *testing.T) {
	Init()
	_, err := AuthenticateJWT("not-a-token")
	assert.Error(t, err)
}

func TestAuthenticateRejectsForeignKey(t *testing.T) {
	Init()
	token, err := CreateHubJWT(uuid.New())
	require.NoError(t, err)

	// rotate the key pair; previously issued tokens must die with it
	Init()
	_, err = AuthenticateJWT(token)
	assert.Error(t, err)
}
