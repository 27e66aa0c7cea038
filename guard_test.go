package authclient_test

import (
	"testing"

	authclient "github.com/goliatone/go-auth-client"
	"github.com/stretchr/testify/assert"
)

func TestGuardDecide(t *testing.T) {
	guard := authclient.NewGuard(testConfig())

	manager := testUser()
	auditor := testUser()
	auditor.Role = authclient.RoleAuditor

	authenticated := authclient.SessionState{
		Status: authclient.StatusAuthenticated,
		User:   manager,
		Tokens: testTokens(),
	}
	asAuditor := authclient.SessionState{
		Status: authclient.StatusAuthenticated,
		User:   auditor,
		Tokens: testTokens(),
	}

	tests := []struct {
		name     string
		state    authclient.SessionState
		path     string
		roles    []authclient.UserRole
		action   authclient.GuardAction
		target   string
	}{
		{
			name:   "wait while uninitialized",
			state:  authclient.SessionState{Status: authclient.StatusUninitialized},
			path:   "/policies",
			action: authclient.ActionWait,
		},
		{
			name:   "unauthenticated redirects to login with return path",
			state:  authclient.SessionState{Status: authclient.StatusUnauthenticated},
			path:   "/policies/42",
			action: authclient.ActionRedirect,
			target: "/login?returnTo=%2Fpolicies%2F42",
		},
		{
			name:   "login route itself carries no return path",
			state:  authclient.SessionState{Status: authclient.StatusUnauthenticated},
			path:   "/login",
			action: authclient.ActionRedirect,
			target: "/login",
		},
		{
			name: "pending challenge overrides everything",
			state: authclient.SessionState{
				Status:        authclient.StatusPendingTwoFactor,
				PendingUserID: "pending-7",
			},
			path:   "/policies",
			roles:  []authclient.UserRole{authclient.RoleAdmin},
			action: authclient.ActionRedirect,
			target: "/login/verify",
		},
		{
			name:   "authenticated passes without role requirements",
			state:  authenticated,
			path:   "/policies",
			action: authclient.ActionAllow,
		},
		{
			name:   "matching role passes",
			state:  authenticated,
			path:   "/policies",
			roles:  []authclient.UserRole{authclient.RoleAdmin, authclient.RoleManager},
			action: authclient.ActionAllow,
		},
		{
			name:   "missing role goes to access denied, not login",
			state:  asAuditor,
			path:   "/admin/users",
			roles:  []authclient.UserRole{authclient.RoleAdmin},
			action: authclient.ActionRedirect,
			target: "/access-denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := guard.Decide(tt.state, tt.path, tt.roles...)
			assert.Equal(t, tt.action, decision.Action)
			assert.Equal(t, tt.target, decision.Target)
		})
	}
}

func TestGuardLoginRedirectEscapesReturnPath(t *testing.T) {
	guard := authclient.NewGuard(testConfig())

	target := guard.LoginRedirect("/reports?year=2026&quarter=Q3")
	assert.Equal(t, "/login?returnTo=%2Freports%3Fyear%3D2026%26quarter%3DQ3", target)

	assert.Equal(t, "/login", guard.LoginRedirect(""))
}

func TestGuardSessionExpiredRedirect(t *testing.T) {
	guard := authclient.NewGuard(testConfig())

	decision := guard.SessionExpiredRedirect(authclient.ReasonRevoked)
	assert.Equal(t, authclient.ActionRedirect, decision.Action)
	assert.Equal(t, "/session-expired?reason=revoked", decision.Target)
	assert.Equal(t, authclient.ReasonRevoked, decision.Reason)

	bare := guard.SessionExpiredRedirect("")
	assert.Equal(t, "/session-expired", bare.Target)
}
