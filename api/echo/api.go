// Package authkitecho mounts the login, callback and logout routes on an
// echo router and exposes the route-protection middleware.
package authkitecho

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	authkit "go.pilab.hu/authkit"
	"go.pilab.hu/authkit/domain"
	"go.pilab.hu/authkit/middleware"
)

// ContextUserKey is where Protect stores the verified user on the echo
// context.
const ContextUserKey = "authkit.user"

// API binds one toolkit instance to echo handlers.
type API struct {
	kit *authkit.AuthKit
}

// New creates the echo binding.
func New(kit *authkit.AuthKit) *API {
	return &API{kit: kit}
}

// RegisterRoutes mounts the auth endpoints on g. Callbacks accept POST as
// well for form-post vendors.
func (a *API) RegisterRoutes(g *echo.Group) {
	g.GET("/login/:provider", a.LoginHandler)
	g.GET("/callback/:provider", a.CallbackHandler)
	g.POST("/callback/:provider", a.CallbackHandler)
	g.GET("/logout", a.LogoutHandler)
	g.POST("/logout", a.LogoutHandler)
}

// LoginHandler starts the authorization-code flow and redirects the
// browser to the vendor.
func (a *API) LoginHandler(c echo.Context) error {
	providerName := c.Param("provider")
	req := &domain.RequestContext{
		ClientIP:  c.RealIP(),
		UserAgent: c.Request().UserAgent(),
		Path:      c.Request().URL.Path,
	}

	lr, err := a.kit.BeginLogin(c.Request().Context(), providerName, req)
	if err != nil {
		switch {
		case errors.Is(err, authkit.ErrProviderNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "provider_not_found"})
		case errors.Is(err, authkit.ErrRateLimited):
			return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "rate_limited"})
		default:
			log.Error().Err(err).Str("provider", providerName).Msg("login initiation failed")
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login_failed"})
		}
	}

	header := c.Response().Header()
	header.Add("Set-Cookie", a.kit.StateCookieHeader(lr.State))
	if lr.Verifier != "" {
		header.Add("Set-Cookie", a.kit.VerifierCookieHeader(lr.Verifier))
	}
	return c.Redirect(http.StatusFound, lr.URL)
}

// CallbackHandler completes the flow; failures are routed through the
// error flow and still end in a redirect.
func (a *API) CallbackHandler(c echo.Context) error {
	providerName := c.Param("provider")

	cb := authkit.CallbackRequest{
		Code:  firstNonEmpty(c.QueryParam("code"), c.FormValue("code")),
		State: firstNonEmpty(c.QueryParam("state"), c.FormValue("state")),
	}
	if cookie, err := c.Cookie(authkit.StateCookieName); err == nil {
		cb.StoredState = cookie.Value
	}
	if cookie, err := c.Cookie(authkit.VerifierCookieName); err == nil {
		cb.Verifier = cookie.Value
	}
	if u := c.FormValue("user"); u != "" {
		cb.Extra = map[string]string{"user": u}
	}

	header := c.Response().Header()
	header.Add("Set-Cookie", a.kit.ClearStateCookieHeader())
	if cb.Verifier != "" {
		header.Add("Set-Cookie", a.kit.ClearVerifierCookieHeader())
	}

	res, err := a.kit.CompleteCallback(c.Request().Context(), providerName, cb)
	if err != nil {
		log.Warn().Err(err).Str("provider", providerName).Msg("callback failed")
		er := a.kit.CompleteCallbackError(c.Request().Context(), providerName, err)
		return c.Redirect(http.StatusFound, er.RedirectURL)
	}

	header.Add("Set-Cookie", res.CookieHeader)
	return c.Redirect(http.StatusFound, res.RedirectURL)
}

// LogoutHandler clears the session cookie and redirects to the optional
// "redirect" query target.
func (a *API) LogoutHandler(c echo.Context) error {
	lr := a.kit.CompleteLogout(c.QueryParam("redirect"))
	c.Response().Header().Add("Set-Cookie", lr.CookieHeader)
	return c.Redirect(http.StatusFound, lr.RedirectURL)
}

// Protect returns middleware enforcing the given authentication and
// authorization options. The verified user is stored under
// ContextUserKey.
func (a *API) Protect(opts middleware.Options) echo.MiddlewareFunc {
	gate := a.kit.Gate(opts)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			d := gate.Check(c.Request())
			switch d.Outcome {
			case middleware.OutcomeUnauthenticated:
				if d.Redirect != "" {
					return c.Redirect(http.StatusFound, d.Redirect)
				}
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": middleware.MessageUnauthorized})
			case middleware.OutcomeForbidden:
				if d.Redirect != "" {
					return c.Redirect(http.StatusFound, d.Redirect)
				}
				return c.JSON(http.StatusForbidden, echo.Map{"error": middleware.MessageForbidden})
			}
			c.Set(ContextUserKey, d.User)
			return next(c)
		}
	}
}

// UserFromContext returns the user Protect attached, or nil.
func UserFromContext(c echo.Context) *domain.AuthUser {
	if u, ok := c.Get(ContextUserKey).(*domain.AuthUser); ok {
		return u
	}
	return nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
