package authclient

import (
	"context"
	"net/http"
	"os"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// DeviceSession describes one active session on the account, as listed on
// the session/device management screen.
type DeviceSession struct {
	ID         uuid.UUID  `json:"id"`
	DeviceID   string     `json:"device_id,omitempty"`
	UserAgent  string     `json:"user_agent,omitempty"`
	IPAddress  string     `json:"ip_address,omitempty"`
	Location   string     `json:"location,omitempty"`
	Current    bool       `json:"current,omitempty"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

// ListDeviceSessions returns every active session for the account.
func (s *Service) ListDeviceSessions(ctx context.Context) ([]DeviceSession, error) {
	var sessions []DeviceSession
	if err := s.do(ctx, http.MethodGet, "/sessions", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// RevokeDeviceSession terminates one session by id. Revoking the current
// session is equivalent to logout and the server will invalidate the
// refresh token behind it.
func (s *Service) RevokeDeviceSession(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return wrapValidation(goerrors.New("session id is required", goerrors.CategoryValidation))
	}
	return s.do(ctx, http.MethodDelete, "/sessions/"+id.String(), nil, nil)
}

// RegenerateRecoveryCodes replaces the account's 2FA recovery codes and
// returns the new plaintext set. The codes are shown once and never stored
// by the client.
func (s *Service) RegenerateRecoveryCodes(ctx context.Context) ([]string, error) {
	var data struct {
		Codes []string `json:"codes"`
	}
	if err := s.do(ctx, http.MethodPost, "/recovery-codes", nil, &data); err != nil {
		return nil, err
	}
	return data.Codes, nil
}

// VerifyRecoveryCode consumes a recovery code in place of an OTP for a
// pending 2FA challenge.
func (s *Service) VerifyRecoveryCode(ctx context.Context, userID, code string) (*AuthPayload, error) {
	if userID == "" || code == "" {
		return nil, wrapValidation(goerrors.New("user id and recovery code are required", goerrors.CategoryValidation))
	}

	body := map[string]string{"userId": userID, "code": code}
	payload := &AuthPayload{}
	if err := s.do(ctx, http.MethodPost, "/verify-recovery-code", body, payload); err != nil {
		return nil, err
	}

	if payload.User == nil || payload.Tokens == nil {
		return nil, FromWireError(http.StatusBadGateway, "", "recovery response missing credentials", nil)
	}
	return payload, nil
}

// DeviceFingerprint derives a stable UUID for this client installation from
// the given seed. Identical seeds always map to the same id, so the server
// can correlate sessions per device without the client storing anything.
func DeviceFingerprint(seed string) (uuid.UUID, error) {
	id, err := hashid.NewUUID(seed)
	if err != nil {
		return uuid.Nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to derive device fingerprint")
	}
	return id, nil
}

// HostDeviceFingerprint derives the fingerprint from hostname and storage
// key, the closest stable identity a headless client has.
func HostDeviceFingerprint(cfg Config) (uuid.UUID, error) {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown-host"
	}
	return DeviceFingerprint(host + ":" + cfg.GetStorageKey())
}
