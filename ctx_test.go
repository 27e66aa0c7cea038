package authclient_test

import (
	"context"
	"testing"

	authclient "github.com/goliatone/go-auth-client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserContextRoundTrip(t *testing.T) {
	_, ok := authclient.FromContext(context.Background())
	assert.False(t, ok)

	user := testUser()
	ctx := authclient.WithContext(context.Background(), user)

	got, ok := authclient.FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, user.Email, got.Email)
}

func TestSessionContextRoundTrip(t *testing.T) {
	_, ok := authclient.SessionFromContext(context.Background())
	assert.False(t, ok)

	state := authclient.SessionState{
		Status: authclient.StatusAuthenticated,
		User:   testUser(),
		Tokens: testTokens(),
	}
	ctx := authclient.WithSessionContext(context.Background(), state)

	got, ok := authclient.SessionFromContext(ctx)
	require.True(t, ok)
	assert.True(t, got.IsAuthenticated())
}

func TestCan(t *testing.T) {
	assert.False(t, authclient.Can(context.Background()), "no session in context")

	unauth := authclient.WithSessionContext(context.Background(), authclient.SessionState{
		Status: authclient.StatusUnauthenticated,
	})
	assert.False(t, authclient.Can(unauth))

	user := testUser() // RoleManager
	ctx := authclient.WithSessionContext(context.Background(), authclient.SessionState{
		Status: authclient.StatusAuthenticated,
		User:   user,
		Tokens: testTokens(),
	})

	assert.True(t, authclient.Can(ctx))
	assert.True(t, authclient.Can(ctx, authclient.RoleManager, authclient.RoleAdmin))
	assert.False(t, authclient.Can(ctx, authclient.RoleSuperAdmin))
}
