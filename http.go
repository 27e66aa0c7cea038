package authclient

import (
	"net/http"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RouteGuard adapts Guard decisions to go-router middleware. It blocks on
// Initialize before the first decision so hydration always completes before
// any redirect, and preserves the rejected route in a short lived cookie so
// login can send the user back.
type RouteGuard struct {
	store        *Store
	guard        *Guard
	cfg          Config
	Logger       Logger
	ErrorHandler func(c router.Context, err error) error
}

func NewRouteGuard(store *Store, cfg Config) *RouteGuard {
	a := &RouteGuard{
		store:  store,
		guard:  NewGuard(cfg),
		cfg:    cfg,
		Logger: defLogger{},
	}
	a.ErrorHandler = a.defaultErrHandler
	return a
}

// Middleware gates a route group on authentication plus optional roles.
func (a *RouteGuard) Middleware(required ...UserRole) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			if !a.store.Snapshot().IsInitialized() {
				if err := a.store.Initialize(c.Context()); err != nil {
					return a.ErrorHandler(c, err)
				}
			}

			snapshot := a.store.Snapshot()
			decision := a.guard.Decide(snapshot, c.OriginalURL(), required...)
			switch decision.Action {
			case ActionAllow:
				c.Locals("session", snapshot)
				c.SetContext(WithSessionContext(WithContext(c.Context(), snapshot.User), snapshot))
				return hf(c)
			case ActionRedirect:
				return a.redirect(c, decision)
			default:
				// Initialize settled the state, so Wait cannot occur here.
				return a.ErrorHandler(c, ErrInvalidSessionTransition.WithMetadata(map[string]any{
					"reason": "guard undecided after initialize",
				}))
			}
		}
	}
}

func (a *RouteGuard) redirect(c router.Context, decision Decision) error {
	a.Logger.Info(
		"Route guard redirect",
		"path", c.OriginalURL(),
		"target", decision.Target,
		"decision", print.MaybePrettyJSON(decision),
	)

	if decision.Target == a.guard.LoginRedirect(c.OriginalURL()) {
		a.SetRedirect(c)
	}

	statusCode := http.StatusSeeOther
	if c.Method() == string(router.GET) {
		statusCode = http.StatusFound
	}
	return c.Redirect(decision.Target, statusCode)
}

// GetRedirect consumes the preserved route, falling back to def.
func (a *RouteGuard) GetRedirect(c router.Context, def ...string) string {
	rejectedRoute := a.cfg.GetRejectedRouteKey()
	r := c.Cookies(rejectedRoute)
	if r == "" {
		if len(def) > 0 {
			return def[0]
		}
		return "/"
	}
	a.cookieDel(c, rejectedRoute)
	return r
}

// SetRedirect remembers the rejected route for five minutes.
func (a *RouteGuard) SetRedirect(c router.Context) {
	rejectedRoute := a.cfg.GetRejectedRouteKey()

	c.Cookie(&router.Cookie{
		Name:     rejectedRoute,
		Value:    c.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *RouteGuard) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *RouteGuard) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected error occurred").
			WithCode(errors.CodeInternal)
	}

	a.Logger.Error(
		"Route guard error",
		"error", richErr.Message,
		"category", richErr.Category,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	statusCode := http.StatusSeeOther
	if c.Method() == string(router.GET) {
		statusCode = http.StatusFound
	}
	return c.Redirect(a.cfg.GetSessionExpiredRoute(), statusCode)
}
