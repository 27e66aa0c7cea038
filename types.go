package authclient

import (
	"fmt"
	"net/http"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// HTTPClient is the transport surface the service depends on. *http.Client
// satisfies it; tests swap in scripted doers.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds client options
type Config interface {
	GetBaseURL() string
	GetStorageKey() string
	GetRememberMeKey() string
	GetLoginRoute() string
	GetTwoFactorRoute() string
	GetAccessDeniedRoute() string
	GetSessionExpiredRoute() string
	GetReturnToParam() string
	GetRejectedRouteKey() string
	GetRequestTimeout() time.Duration
}

// ClientConfig is the default Config implementation. Zero fields fall back
// to the same defaults a fresh browser client would use.
type ClientConfig struct {
	BaseURL             string
	StorageKey          string
	RememberMeKey       string
	LoginRoute          string
	TwoFactorRoute      string
	AccessDeniedRoute   string
	SessionExpiredRoute string
	ReturnToParam       string
	RejectedRouteKey    string
	RequestTimeout      time.Duration
}

func NewConfig(baseURL string) *ClientConfig {
	return &ClientConfig{BaseURL: baseURL}
}

func (c *ClientConfig) GetBaseURL() string { return c.BaseURL }

func (c *ClientConfig) GetStorageKey() string {
	if c.StorageKey == "" {
		return "auth-storage"
	}
	return c.StorageKey
}

func (c *ClientConfig) GetRememberMeKey() string {
	if c.RememberMeKey == "" {
		return "auth_remember_me"
	}
	return c.RememberMeKey
}

func (c *ClientConfig) GetLoginRoute() string {
	if c.LoginRoute == "" {
		return "/login"
	}
	return c.LoginRoute
}

func (c *ClientConfig) GetTwoFactorRoute() string {
	if c.TwoFactorRoute == "" {
		return "/login/verify"
	}
	return c.TwoFactorRoute
}

func (c *ClientConfig) GetAccessDeniedRoute() string {
	if c.AccessDeniedRoute == "" {
		return "/access-denied"
	}
	return c.AccessDeniedRoute
}

func (c *ClientConfig) GetSessionExpiredRoute() string {
	if c.SessionExpiredRoute == "" {
		return "/session-expired"
	}
	return c.SessionExpiredRoute
}

func (c *ClientConfig) GetReturnToParam() string {
	if c.ReturnToParam == "" {
		return "returnTo"
	}
	return c.ReturnToParam
}

func (c *ClientConfig) GetRejectedRouteKey() string {
	if c.RejectedRouteKey == "" {
		return "rejected_route"
	}
	return c.RejectedRouteKey
}

func (c *ClientConfig) GetRequestTimeout() time.Duration {
	if c.RequestTimeout == 0 {
		return 30 * time.Second
	}
	return c.RequestTimeout
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTHCLIENT "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTHCLIENT "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTHCLIENT "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTHCLIENT "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
