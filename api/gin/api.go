// Package authkitgin mounts the login, callback and logout routes on a
// gin router and exposes the route-protection middleware.
package authkitgin

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	authkit "go.pilab.hu/authkit"
	"go.pilab.hu/authkit/domain"
	"go.pilab.hu/authkit/middleware"
)

// ContextUserKey is where Protect stores the verified user on the gin
// context.
const ContextUserKey = "authkit.user"

// API binds one toolkit instance to gin handlers.
type API struct {
	kit *authkit.AuthKit
}

// New creates the gin binding.
func New(kit *authkit.AuthKit) *API {
	return &API{kit: kit}
}

// RegisterRoutes mounts the auth endpoints on rg. Callbacks accept POST
// as well because some vendors (Apple) deliver the callback as a form
// post.
func (a *API) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/login/:provider", a.LoginHandler)
	rg.GET("/callback/:provider", a.CallbackHandler)
	rg.POST("/callback/:provider", a.CallbackHandler)
	rg.GET("/logout", a.LogoutHandler)
	rg.POST("/logout", a.LogoutHandler)
}

// LoginHandler starts the authorization-code flow and redirects the
// browser to the vendor.
func (a *API) LoginHandler(c *gin.Context) {
	providerName := c.Param("provider")
	req := &domain.RequestContext{
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Path:      c.Request.URL.Path,
	}

	lr, err := a.kit.BeginLogin(c.Request.Context(), providerName, req)
	if err != nil {
		switch {
		case errors.Is(err, authkit.ErrProviderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "provider_not_found"})
		case errors.Is(err, authkit.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
		default:
			log.Error().Err(err).Str("provider", providerName).Msg("login initiation failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login_failed"})
		}
		return
	}

	header := c.Writer.Header()
	header.Add("Set-Cookie", a.kit.StateCookieHeader(lr.State))
	if lr.Verifier != "" {
		header.Add("Set-Cookie", a.kit.VerifierCookieHeader(lr.Verifier))
	}
	c.Redirect(http.StatusFound, lr.URL)
}

// CallbackHandler completes the flow: on success it sets the session
// cookie and redirects; any failure is routed through the error flow and
// still ends in a redirect.
func (a *API) CallbackHandler(c *gin.Context) {
	providerName := c.Param("provider")

	cb := authkit.CallbackRequest{
		Code:  firstNonEmpty(c.Query("code"), c.PostForm("code")),
		State: firstNonEmpty(c.Query("state"), c.PostForm("state")),
	}
	if v, err := c.Cookie(authkit.StateCookieName); err == nil {
		cb.StoredState = v
	}
	if v, err := c.Cookie(authkit.VerifierCookieName); err == nil {
		cb.Verifier = v
	}
	// Apple ships the user's name in a one-time "user" form field.
	if u := c.PostForm("user"); u != "" {
		cb.Extra = map[string]string{"user": u}
	}

	header := c.Writer.Header()
	header.Add("Set-Cookie", a.kit.ClearStateCookieHeader())
	if cb.Verifier != "" {
		header.Add("Set-Cookie", a.kit.ClearVerifierCookieHeader())
	}

	res, err := a.kit.CompleteCallback(c.Request.Context(), providerName, cb)
	if err != nil {
		log.Warn().Err(err).Str("provider", providerName).Msg("callback failed")
		er := a.kit.CompleteCallbackError(c.Request.Context(), providerName, err)
		c.Redirect(http.StatusFound, er.RedirectURL)
		return
	}

	header.Add("Set-Cookie", res.CookieHeader)
	c.Redirect(http.StatusFound, res.RedirectURL)
}

// LogoutHandler clears the session cookie and redirects to the optional
// "redirect" query target.
func (a *API) LogoutHandler(c *gin.Context) {
	lr := a.kit.CompleteLogout(c.Query("redirect"))
	c.Writer.Header().Add("Set-Cookie", lr.CookieHeader)
	c.Redirect(http.StatusFound, lr.RedirectURL)
}

// Protect returns middleware enforcing the given authentication and
// authorization options. The verified user is stored under
// ContextUserKey.
func (a *API) Protect(opts middleware.Options) gin.HandlerFunc {
	gate := a.kit.Gate(opts)
	return func(c *gin.Context) {
		d := gate.Check(c.Request)
		switch d.Outcome {
		case middleware.OutcomeAuthorized:
			c.Set(ContextUserKey, d.User)
			c.Next()
		case middleware.OutcomeUnauthenticated:
			if d.Redirect != "" {
				c.Redirect(http.StatusFound, d.Redirect)
			} else {
				c.JSON(http.StatusUnauthorized, gin.H{"error": middleware.MessageUnauthorized})
			}
			c.Abort()
		case middleware.OutcomeForbidden:
			if d.Redirect != "" {
				c.Redirect(http.StatusFound, d.Redirect)
			} else {
				c.JSON(http.StatusForbidden, gin.H{"error": middleware.MessageForbidden})
			}
			c.Abort()
		}
	}
}

// UserFromContext returns the user Protect attached, or nil.
func UserFromContext(c *gin.Context) *domain.AuthUser {
	if v, ok := c.Get(ContextUserKey); ok {
		if u, ok := v.(*domain.AuthUser); ok {
			return u
		}
	}
	return nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
