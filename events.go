package authclient

import (
	"context"
	"time"
)

// AuthEventType enumerates the session lifecycle events the client emits.
type AuthEventType string

const (
	EventLoginSuccess      AuthEventType = "auth.login.success"
	EventLoginFailure      AuthEventType = "auth.login.failure"
	EventTwoFactorRequired AuthEventType = "auth.login.2fa_required"
	EventRegisterSuccess   AuthEventType = "auth.register.success"
	EventTokenRefreshed    AuthEventType = "auth.token.refreshed"
	EventLogout            AuthEventType = "auth.logout"
	// EventForcedLogout is broadcast when the transport gives up on a session
	// (refresh failure, revocation, external storage clear). The application
	// shell consumes it to redirect to the session expired screen, keeping
	// transport failures decoupled from UI routing.
	EventForcedLogout AuthEventType = "auth.logout.forced"
)

// LogoutReason is preserved for display on the session expired screen.
type LogoutReason string

const (
	ReasonTimeout  LogoutReason = "timeout"
	ReasonRevoked  LogoutReason = "revoked"
	ReasonSecurity LogoutReason = "security"
	ReasonLogout   LogoutReason = "logout"
)

// AuthEvent captures a session lifecycle notification.
type AuthEvent struct {
	EventType  AuthEventType
	UserID     string
	Reason     LogoutReason
	Metadata   map[string]any
	OccurredAt time.Time
}

// EventSink consumes auth events. Sinks run best-effort: errors are logged,
// never propagated into the auth flow that emitted the event.
type EventSink interface {
	Record(ctx context.Context, event AuthEvent) error
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(ctx context.Context, event AuthEvent) error

// Record implements EventSink.
func (f EventSinkFunc) Record(ctx context.Context, event AuthEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopEventSink struct{}

func (noopEventSink) Record(context.Context, AuthEvent) error {
	return nil
}

func normalizeEventSink(s EventSink) EventSink {
	if s == nil {
		return noopEventSink{}
	}
	return s
}

func emitEvent(ctx context.Context, sink EventSink, logger Logger, event AuthEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := normalizeEventSink(sink).Record(ctx, event); err != nil {
		if logger == nil {
			logger = defLogger{}
		}
		logger.Warn("event sink record error: %v", err)
	}
}
