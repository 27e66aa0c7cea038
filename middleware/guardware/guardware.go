// Package guardware provides a Fiber middleware that gates routes on the
// client auth session: it waits for hydration, redirects unauthenticated
// users to login with the requested path preserved, sends pending 2FA
// sessions to the challenge screen, and role-gated routes to access denied.
package guardware

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	authclient "github.com/goliatone/go-auth-client"
)

// Config defines the configuration for the guard middleware
type Config struct {
	// Skip defines a function to skip middleware
	Skip func(c *fiber.Ctx) bool

	// Store is the session store consulted on every request. Required.
	Store *authclient.Store

	// ClientConfig carries the redirect destinations. Required.
	ClientConfig authclient.Config

	// RequiredRoles gates the route on exact role membership. Empty means
	// any authenticated user passes.
	RequiredRoles []authclient.UserRole

	// ErrorHandler runs when hydration fails. Defaults to a redirect to the
	// session expired screen.
	ErrorHandler fiber.ErrorHandler
}

// New returns a guard middleware for the given config.
func New(config Config) fiber.Handler {
	if config.Store == nil {
		panic("guardware: Store is required")
	}
	if config.ClientConfig == nil {
		panic("guardware: ClientConfig is required")
	}

	guard := authclient.NewGuard(config.ClientConfig)

	if config.ErrorHandler == nil {
		config.ErrorHandler = func(c *fiber.Ctx, _ error) error {
			return c.Redirect(config.ClientConfig.GetSessionExpiredRoute(), redirectStatus(c))
		}
	}

	return func(c *fiber.Ctx) error {
		if config.Skip != nil && config.Skip(c) {
			return c.Next()
		}

		if !config.Store.Snapshot().IsInitialized() {
			if err := config.Store.Initialize(c.UserContext()); err != nil {
				return config.ErrorHandler(c, err)
			}
		}

		snapshot := config.Store.Snapshot()
		decision := guard.Decide(snapshot, c.OriginalURL(), config.RequiredRoles...)
		switch decision.Action {
		case authclient.ActionAllow:
			c.Locals("session", snapshot)
			c.SetUserContext(authclient.WithSessionContext(
				authclient.WithContext(c.UserContext(), snapshot.User),
				snapshot,
			))
			return c.Next()
		case authclient.ActionRedirect:
			if decision.Target == guard.LoginRedirect(c.OriginalURL()) {
				setRejectedRoute(c, config.ClientConfig, c.OriginalURL())
			}
			return c.Redirect(decision.Target, redirectStatus(c))
		default:
			return config.ErrorHandler(c, authclient.ErrSessionExpired)
		}
	}
}

// ConsumeRejectedRoute pops the preserved route so the login handler can
// forward the user back, falling back to def.
func ConsumeRejectedRoute(c *fiber.Ctx, cfg authclient.Config, def string) string {
	key := cfg.GetRejectedRouteKey()
	r := c.Cookies(key)
	if r == "" {
		return def
	}

	c.Cookie(&fiber.Cookie{
		Name:     key,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * 24),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
	return r
}

func setRejectedRoute(c *fiber.Ctx, cfg authclient.Config, path string) {
	c.Cookie(&fiber.Cookie{
		Name:     cfg.GetRejectedRouteKey(),
		Value:    path,
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func redirectStatus(c *fiber.Ctx) int {
	if c.Method() == fiber.MethodGet {
		return http.StatusFound
	}
	return http.StatusSeeOther
}
