package authclient

import (
	"context"

	"github.com/goliatone/go-router"
)

var userCtxKey = &contextKey{"user"}
var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// WithContext sets the User in the given context
func WithContext(r context.Context, user *User) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok
}

// WithSessionContext sets the session snapshot in the given context
func WithSessionContext(r context.Context, state SessionState) context.Context {
	return context.WithValue(r, sessionCtxKey, state)
}

// SessionFromContext extracts the session snapshot from the standard context
func SessionFromContext(ctx context.Context) (SessionState, bool) {
	raw, ok := ctx.Value(sessionCtxKey).(SessionState)
	return raw, ok
}

// RouterSession extracts the session snapshot from the router context
func RouterSession(ctx router.Context, key string) (SessionState, bool) {
	if key == "" {
		key = "session" // Default key used by the route guard
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return SessionState{}, false
	}
	state, ok := raw.(SessionState)
	return state, ok
}

// Can is a convenience role check directly from the standard context.
func Can(ctx context.Context, roles ...UserRole) bool {
	state, ok := SessionFromContext(ctx)
	if !ok || !state.IsAuthenticated() {
		return false
	}
	if len(roles) == 0 {
		return true
	}
	return RoleIn(state.User.Role, roles...)
}
