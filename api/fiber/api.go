// Package authkitfiber mounts the login, callback and logout routes on a
// fiber app and exposes the route-protection middleware.
package authkitfiber

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	authkit "go.pilab.hu/authkit"
	"go.pilab.hu/authkit/domain"
	"go.pilab.hu/authkit/middleware"
)

// ContextUserKey is where Protect stores the verified user in the fiber
// locals.
const ContextUserKey = "authkit.user"

// API binds one toolkit instance to fiber handlers.
type API struct {
	kit *authkit.AuthKit
}

// New creates the fiber binding.
func New(kit *authkit.AuthKit) *API {
	return &API{kit: kit}
}

// RegisterRoutes mounts the auth endpoints under the toolkit's base
// path. Callbacks accept POST as well for form-post vendors.
func (a *API) RegisterRoutes(app *fiber.App) {
	base := a.kit.BasePath()
	app.Get(base+"/login/:provider", a.LoginHandler)
	app.Get(base+"/callback/:provider", a.CallbackHandler)
	app.Post(base+"/callback/:provider", a.CallbackHandler)
	app.Get(base+"/logout", a.LogoutHandler)
	app.Post(base+"/logout", a.LogoutHandler)
}

// LoginHandler starts the authorization-code flow and redirects the
// browser to the vendor.
func (a *API) LoginHandler(c fiber.Ctx) error {
	providerName := c.Params("provider")
	req := &domain.RequestContext{
		ClientIP:  c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
		Path:      c.Path(),
	}

	lr, err := a.kit.BeginLogin(c.Context(), providerName, req)
	if err != nil {
		switch {
		case errors.Is(err, authkit.ErrProviderNotFound):
			return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "provider_not_found"})
		case errors.Is(err, authkit.ErrRateLimited):
			return c.Status(http.StatusTooManyRequests).JSON(fiber.Map{"error": "rate_limited"})
		default:
			log.Error().Err(err).Str("provider", providerName).Msg("login initiation failed")
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "login_failed"})
		}
	}

	c.Response().Header.Add("Set-Cookie", a.kit.StateCookieHeader(lr.State))
	if lr.Verifier != "" {
		c.Response().Header.Add("Set-Cookie", a.kit.VerifierCookieHeader(lr.Verifier))
	}
	return c.Redirect().Status(http.StatusFound).To(lr.URL)
}

// CallbackHandler completes the flow; failures are routed through the
// error flow and still end in a redirect.
func (a *API) CallbackHandler(c fiber.Ctx) error {
	providerName := c.Params("provider")

	cb := authkit.CallbackRequest{
		Code:        firstNonEmpty(c.Query("code"), c.FormValue("code")),
		State:       firstNonEmpty(c.Query("state"), c.FormValue("state")),
		StoredState: c.Cookies(authkit.StateCookieName),
		Verifier:    c.Cookies(authkit.VerifierCookieName),
	}
	if u := c.FormValue("user"); u != "" {
		cb.Extra = map[string]string{"user": u}
	}

	c.Response().Header.Add("Set-Cookie", a.kit.ClearStateCookieHeader())
	if cb.Verifier != "" {
		c.Response().Header.Add("Set-Cookie", a.kit.ClearVerifierCookieHeader())
	}

	res, err := a.kit.CompleteCallback(c.Context(), providerName, cb)
	if err != nil {
		log.Warn().Err(err).Str("provider", providerName).Msg("callback failed")
		er := a.kit.CompleteCallbackError(c.Context(), providerName, err)
		return c.Redirect().Status(http.StatusFound).To(er.RedirectURL)
	}

	c.Response().Header.Add("Set-Cookie", res.CookieHeader)
	return c.Redirect().Status(http.StatusFound).To(res.RedirectURL)
}

// LogoutHandler clears the session cookie and redirects to the optional
// "redirect" query target.
func (a *API) LogoutHandler(c fiber.Ctx) error {
	lr := a.kit.CompleteLogout(c.Query("redirect"))
	c.Response().Header.Add("Set-Cookie", lr.CookieHeader)
	return c.Redirect().Status(http.StatusFound).To(lr.RedirectURL)
}

// Protect returns middleware enforcing the given authentication and
// authorization options. The verified user is stored in the locals under
// ContextUserKey.
func (a *API) Protect(opts middleware.Options) fiber.Handler {
	gate := a.kit.Gate(opts)
	return func(c fiber.Ctx) error {
		d := gate.CheckCookieHeader(c.Get(fiber.HeaderCookie))
		switch d.Outcome {
		case middleware.OutcomeUnauthenticated:
			if d.Redirect != "" {
				return c.Redirect().Status(http.StatusFound).To(d.Redirect)
			}
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": middleware.MessageUnauthorized})
		case middleware.OutcomeForbidden:
			if d.Redirect != "" {
				return c.Redirect().Status(http.StatusFound).To(d.Redirect)
			}
			return c.Status(http.StatusForbidden).JSON(fiber.Map{"error": middleware.MessageForbidden})
		}
		c.Locals(ContextUserKey, d.User)
		return c.Next()
	}
}

// UserFromContext returns the user Protect attached, or nil.
func UserFromContext(c fiber.Ctx) *domain.AuthUser {
	if u, ok := c.Locals(ContextUserKey).(*domain.AuthUser); ok {
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
