package authclient

import (
	"net/url"
)

// GuardAction is the outcome class of a navigation decision.
type GuardAction string

const (
	// ActionWait means hydration has not finished; render nothing and do not
	// redirect, so users never see a login flicker on reload.
	ActionWait GuardAction = "wait"
	// ActionAllow lets the navigation proceed.
	ActionAllow GuardAction = "allow"
	// ActionRedirect sends the user to Decision.Target.
	ActionRedirect GuardAction = "redirect"
)

// Decision is a navigation verdict derived purely from session state. The
// guard holds no state of its own.
type Decision struct {
	Action GuardAction
	// Target is the destination for ActionRedirect, query string included.
	Target string
	// Reason is set when the redirect is caused by a session teardown.
	Reason LogoutReason
}

// Guard turns session state plus route requirements into navigation
// decisions. Precedence: wait while uninitialized, then a pending 2FA
// challenge overrides everything, then authentication, then roles. The
// access denied destination is deliberately distinct from the login one.
type Guard struct {
	cfg Config
}

func NewGuard(cfg Config) *Guard {
	return &Guard{cfg: cfg}
}

// Decide evaluates a navigation to path for the given state. requiredRoles
// empty means any authenticated user may pass.
func (g *Guard) Decide(state SessionState, path string, requiredRoles ...UserRole) Decision {
	if !state.IsInitialized() {
		return Decision{Action: ActionWait}
	}

	if state.RequiresTwoFactor() {
		return Decision{Action: ActionRedirect, Target: g.cfg.GetTwoFactorRoute()}
	}

	if !state.IsAuthenticated() {
		return Decision{Action: ActionRedirect, Target: g.LoginRedirect(path)}
	}

	if len(requiredRoles) > 0 && !RoleIn(state.User.Role, requiredRoles...) {
		return Decision{Action: ActionRedirect, Target: g.cfg.GetAccessDeniedRoute()}
	}

	return Decision{Action: ActionAllow}
}

// LoginRedirect builds the login destination preserving the originally
// requested path so login can forward the user back.
func (g *Guard) LoginRedirect(returnTo string) string {
	target := g.cfg.GetLoginRoute()
	if returnTo == "" || returnTo == target {
		return target
	}
	return target + "?" + g.cfg.GetReturnToParam() + "=" + url.QueryEscape(returnTo)
}

// SessionExpiredRedirect builds the dedicated session expired destination,
// preserving the reason code (timeout, revoked, security, logout) for
// display. A mid-use expiry lands here, not on a silent bounce to login.
func (g *Guard) SessionExpiredRedirect(reason LogoutReason) Decision {
	target := g.cfg.GetSessionExpiredRoute()
	if reason != "" {
		target += "?reason=" + url.QueryEscape(string(reason))
	}
	return Decision{Action: ActionRedirect, Target: target, Reason: reason}
}
