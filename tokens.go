package authclient

import (
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// AccessClaims is the subset of access token claims the client inspects.
type AccessClaims struct {
	jwt.RegisteredClaims
	UID      string `json:"uid,omitempty"`
	UserRole string `json:"role,omitempty"`
}

// UserID returns the uid claim, falling back to the subject.
func (c *AccessClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject
}

// Role returns the role claim.
func (c *AccessClaims) Role() string {
	return c.UserRole
}

// ExpiresAtTime returns the expiration, zero when absent.
func (c *AccessClaims) ExpiresAtTime() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// Expired reports whether the token is past its expiration at now. Tokens
// without an exp claim never report expired locally; the server still gets
// the final word via 401.
func (c *AccessClaims) Expired(now time.Time) bool {
	exp := c.ExpiresAtTime()
	if exp.IsZero() {
		return false
	}
	return now.After(exp)
}

// PeekClaims decodes access token claims without verifying the signature.
// The client is not the trust boundary, the server is: this exists so the UI
// can read role and expiry hints, never to grant access.
func PeekClaims(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, errors.Wrap(err, ErrTokenInvalid.Category, ErrTokenInvalid.Message).
			WithTextCode(ErrTokenInvalid.TextCode)
	}
	return claims, nil
}

// TokenVerifier validates tokens and extracts claims without tying callers
// to a specific verification backend.
type TokenVerifier interface {
	Verify(token string) (*AccessClaims, error)
}

// TokenVerifierFunc adapts a function into a TokenVerifier.
type TokenVerifierFunc func(token string) (*AccessClaims, error)

// Verify satisfies the TokenVerifier interface.
func (f TokenVerifierFunc) Verify(token string) (*AccessClaims, error) {
	if f == nil {
		return nil, ErrTokenInvalid
	}
	return f(token)
}

// JWKSVerifier verifies access tokens against the backend's published JWK
// set, with background refresh handled by keyfunc.
type JWKSVerifier struct {
	jwks   *keyfunc.JWKS
	logger Logger
}

// NewJWKSVerifier fetches the JWK set from url and keeps it refreshed.
func NewJWKSVerifier(url string, logger Logger) (*JWKSVerifier, error) {
	if logger == nil {
		logger = defLogger{}
	}

	jwks, err := keyfunc.Get(url, keyfunc.Options{
		RefreshErrorHandler: func(err error) {
			logger.Warn("background JWK set refresh failed: %v", err)
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryOperation, "failed to fetch JWK set").
			WithTextCode(TextCodeNetworkError)
	}

	return &JWKSVerifier{jwks: jwks, logger: logger}, nil
}

// Verify parses and validates the token signature and registered claims.
func (v *JWKSVerifier) Verify(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, v.jwks.Keyfunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, errors.Wrap(err, ErrTokenInvalid.Category, ErrTokenInvalid.Message).
			WithTextCode(ErrTokenInvalid.TextCode)
	}

	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// Close stops the background JWK refresh goroutine.
func (v *JWKSVerifier) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}
