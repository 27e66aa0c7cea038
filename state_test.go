package authclient_test

import (
	"testing"

	authclient "github.com/goliatone/go-auth-client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStateValidateAuthenticatedRequiresCredentials(t *testing.T) {
	state := authclient.SessionState{Status: authclient.StatusAuthenticated}
	err := state.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, authclient.ErrInvalidSessionTransition)

	state.User = testUser()
	err = state.Validate()
	require.Error(t, err)

	state.Tokens = testTokens()
	require.NoError(t, state.Validate())
}

func TestSessionStateValidateAuthenticatedRejectsPendingChallenge(t *testing.T) {
	state := authclient.SessionState{
		Status:        authclient.StatusAuthenticated,
		User:          testUser(),
		Tokens:        testTokens(),
		PendingUserID: "pending-1",
	}
	err := state.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, authclient.ErrInvalidSessionTransition)
}

func TestSessionStateValidatePendingTwoFactorShape(t *testing.T) {
	state := authclient.SessionState{Status: authclient.StatusPendingTwoFactor}
	require.Error(t, state.Validate())

	state.PendingUserID = "pending-1"
	require.NoError(t, state.Validate())

	// Credentials never coexist with a pending challenge.
	state.Tokens = testTokens()
	require.Error(t, state.Validate())
}

func TestSessionStateValidateEmptyStates(t *testing.T) {
	for _, status := range []authclient.SessionStatus{
		authclient.StatusUninitialized,
		authclient.StatusUnauthenticated,
	} {
		state := authclient.SessionState{Status: status}
		require.NoError(t, state.Validate(), string(status))

		state.User = testUser()
		require.Error(t, state.Validate(), string(status))
	}
}

func TestSessionStatePredicates(t *testing.T) {
	uninit := authclient.SessionState{Status: authclient.StatusUninitialized}
	assert.False(t, uninit.IsInitialized())
	assert.False(t, uninit.IsAuthenticated())

	pending := authclient.SessionState{
		Status:        authclient.StatusPendingTwoFactor,
		PendingUserID: "pending-1",
	}
	assert.True(t, pending.IsInitialized())
	assert.True(t, pending.RequiresTwoFactor())
	assert.False(t, pending.IsAuthenticated())

	full := authclient.SessionState{
		Status: authclient.StatusAuthenticated,
		User:   testUser(),
		Tokens: testTokens(),
	}
	assert.True(t, full.IsAuthenticated())
	assert.False(t, full.RequiresTwoFactor())
}
