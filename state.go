package authclient

import (
	goerrors "github.com/goliatone/go-errors"
)

// SessionStatus is the tagged session state. Exactly one status holds at any
// time, which rules out the invalid flag combinations a boolean-flag design
// would only prevent by convention.
type SessionStatus string

const (
	// StatusUninitialized holds from construction until Initialize completes.
	StatusUninitialized SessionStatus = "uninitialized"
	// StatusUnauthenticated means no credentials are held.
	StatusUnauthenticated SessionStatus = "unauthenticated"
	// StatusPendingTwoFactor means login succeeded pending a second factor.
	StatusPendingTwoFactor SessionStatus = "pending_2fa"
	// StatusAuthenticated means user and tokens are both populated.
	StatusAuthenticated SessionStatus = "authenticated"
)

// ErrInvalidSessionTransition is returned when a requested session status
// change is not allowed.
var ErrInvalidSessionTransition = goerrors.New("invalid session state transition", goerrors.CategoryConflict).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(goerrors.CodeConflict)

// sessionTransitions is the allowed transition graph. Initialize hydrates out
// of StatusUninitialized; everything else moves between the three live states.
var sessionTransitions = map[SessionStatus]map[SessionStatus]struct{}{
	StatusUninitialized: {
		StatusUnauthenticated:  {},
		StatusPendingTwoFactor: {},
		StatusAuthenticated:    {},
	},
	StatusUnauthenticated: {
		StatusPendingTwoFactor: {},
		StatusAuthenticated:    {},
	},
	StatusPendingTwoFactor: {
		StatusAuthenticated:   {},
		StatusUnauthenticated: {},
	},
	StatusAuthenticated: {
		StatusUnauthenticated: {},
	},
}

func canTransition(from, to SessionStatus) bool {
	if from == to {
		return true
	}
	allowed, ok := sessionTransitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// SessionState is a point-in-time view of the session. User and Tokens are
// populated iff Status is StatusAuthenticated; PendingUserID iff
// StatusPendingTwoFactor.
type SessionState struct {
	Status        SessionStatus
	User          *User
	Tokens        *AuthTokens
	PendingUserID string

	// Transient per-process fields, never persisted.
	Loading  bool
	LastErr  *goerrors.Error
	Remember bool
}

// IsInitialized reports whether Initialize has completed, success or failure.
func (s SessionState) IsInitialized() bool {
	return s.Status != StatusUninitialized
}

// IsAuthenticated is true iff a full session is established.
func (s SessionState) IsAuthenticated() bool {
	return s.Status == StatusAuthenticated
}

// RequiresTwoFactor is true while a 2FA challenge is pending. Mutually
// exclusive with IsAuthenticated.
func (s SessionState) RequiresTwoFactor() bool {
	return s.Status == StatusPendingTwoFactor
}

// Validate enforces the per-status shape invariants.
func (s SessionState) Validate() error {
	switch s.Status {
	case StatusAuthenticated:
		if s.User == nil || s.Tokens == nil {
			return ErrInvalidSessionTransition.WithMetadata(map[string]any{
				"status": s.Status,
				"reason": "authenticated state requires user and tokens",
			})
		}
		if s.PendingUserID != "" {
			return ErrInvalidSessionTransition.WithMetadata(map[string]any{
				"status": s.Status,
				"reason": "authenticated state cannot carry a pending 2FA challenge",
			})
		}
	case StatusPendingTwoFactor:
		if s.PendingUserID == "" {
			return ErrInvalidSessionTransition.WithMetadata(map[string]any{
				"status": s.Status,
				"reason": "pending 2FA state requires a pending user id",
			})
		}
		if s.User != nil || s.Tokens != nil {
			return ErrInvalidSessionTransition.WithMetadata(map[string]any{
				"status": s.Status,
				"reason": "pending 2FA state must not hold credentials",
			})
		}
	case StatusUninitialized, StatusUnauthenticated:
		if s.User != nil || s.Tokens != nil || s.PendingUserID != "" {
			return ErrInvalidSessionTransition.WithMetadata(map[string]any{
				"status": s.Status,
				"reason": "state must be empty",
			})
		}
	default:
		return ErrInvalidSessionTransition.WithMetadata(map[string]any{
			"status": s.Status,
			"reason": "unknown status",
		})
	}
	return nil
}

func (s SessionState) clone() SessionState {
	cp := s
	cp.User = s.User.Clone()
	cp.Tokens = s.Tokens.Clone()
	return cp
}

// unauthenticatedState is the fully torn down shape every failure path
// rolls back to.
func unauthenticatedState() SessionState {
	return SessionState{Status: StatusUnauthenticated}
}

func authenticatedState(user *User, tokens *AuthTokens) SessionState {
	return SessionState{
		Status: StatusAuthenticated,
		User:   user,
		Tokens: tokens,
	}
}

func pendingTwoFactorState(pendingUserID string) SessionState {
	return SessionState{
		Status:        StatusPendingTwoFactor,
		PendingUserID: pendingUserID,
	}
}
