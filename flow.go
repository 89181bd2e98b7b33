package authkit

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"go.pilab.hu/authkit/domain"
	"go.pilab.hu/authkit/providers"
	"go.pilab.hu/authkit/session"
)

// Transient cookie names used between login initiation and the callback.
const (
	StateCookieName    = "authkit_state"
	VerifierCookieName = "authkit_verifier"
)

// transientCookieMaxAge bounds how long a login attempt may stay open.
const transientCookieMaxAge = 600

// LoginRedirect is the outcome of BeginLogin. The adapter must store
// State (and Verifier, when set) in short-lived cookies and redirect the
// browser to URL.
type LoginRedirect struct {
	URL      string
	State    string
	Verifier string
}

// BeginLogin starts the authorization-code flow for the named provider:
// rate-limit the caller, run the before-auth hook, generate the CSRF
// state (and a PKCE verifier for providers that require one) and build
// the vendor authorization URL.
func (a *AuthKit) BeginLogin(ctx context.Context, providerName string, req *domain.RequestContext) (*LoginRedirect, error) {
	p, err := a.Provider(providerName)
	if err != nil {
		return nil, err
	}

	if a.limiter != nil && req != nil && req.ClientIP != "" {
		if !a.limiter.Check(req.ClientIP) {
			return nil, ErrRateLimited
		}
	}

	if a.cfg.Hooks.OnBeforeAuth != nil {
		if err := callBeforeAuth(ctx, a.cfg.Hooks.OnBeforeAuth, providerName, req); err != nil {
			log.Warn().Err(err).Str("provider", providerName).
				Msg("before-auth hook failed; continuing")
		}
	}

	state, err := generateState()
	if err != nil {
		return nil, err
	}

	var opts []oauth2.AuthCodeOption
	var verifier string
	if providers.UsesPKCE(p) {
		verifier = oauth2.GenerateVerifier()
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}

	authURL, err := p.AuthCodeURL(state, a.CallbackURL(providerName), opts...)
	if err != nil {
		return nil, err
	}

	a.emit(Event{Kind: EventLogin, Provider: providerName, Request: req})

	return &LoginRedirect{URL: authURL, State: state, Verifier: verifier}, nil
}

func callBeforeAuth(ctx context.Context, hook func(context.Context, string, *domain.RequestContext) error, provider string, req *domain.RequestContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Str("provider", provider).
				Msg("before-auth hook panicked; continuing")
			err = nil
		}
	}()
	return hook(ctx, provider, req)
}

// CallbackRequest carries the values the adapter extracted from the
// provider's redirect back to the application.
type CallbackRequest struct {
	// Code is the authorization code from the query (or form body for
	// form_post vendors).
	Code string
	// State is the state echoed by the provider.
	State string
	// StoredState is the state read back from the transient cookie.
	StoredState string
	// Verifier is the PKCE verifier read back from its transient cookie,
	// empty for providers that do not use PKCE.
	Verifier string
	// Extra carries vendor-specific callback fields, e.g. Apple's "user"
	// form value on first login.
	Extra map[string]string
	// RequestedRedirect is the application-supplied post-login target,
	// subject to the redirect-safety check.
	RequestedRedirect string
}

// CallbackResult is a completed login: where to send the browser and the
// Set-Cookie header establishing the session.
type CallbackResult struct {
	RedirectURL  string
	User         *domain.AuthUser
	SessionToken string
	CookieHeader string
}

// CompleteCallback validates the provider callback, exchanges the code,
// fetches the profile, persists tokens, links the identity, runs the
// success hook and mints the session cookie. Failures are returned to the
// adapter, which routes them through CompleteCallbackError.
func (a *AuthKit) CompleteCallback(ctx context.Context, providerName string, cb CallbackRequest) (*CallbackResult, error) {
	if cb.State == "" || cb.StoredState == "" || cb.State != cb.StoredState {
		return nil, ErrCSRFMismatch
	}
	if cb.Code == "" {
		return nil, ErrMissingCode
	}

	p, err := a.Provider(providerName)
	if err != nil {
		return nil, err
	}

	var opts []oauth2.AuthCodeOption
	if cb.Verifier != "" {
		opts = append(opts, oauth2.VerifierOption(cb.Verifier))
	}
	tokens, err := p.Exchange(ctx, a.CallbackURL(providerName), cb.Code, opts...)
	if err != nil {
		return nil, err
	}

	user, err := p.FetchProfile(ctx, tokens, cb.Extra)
	if err != nil {
		return nil, err
	}

	// Persistence is best effort, and happens before the success hook so
	// the hook can read the just-stored tokens.
	key := domain.TokenKey(providerName, user.ID)
	if err := a.tokens.Set(ctx, key, tokens); err != nil {
		log.Error().Err(err).Str("key", key).Msg("persisting provider tokens failed")
	}

	override := a.callSuccess(ctx, providerName, user, tokens)

	var extra *session.ExtraClaims
	redirect := cb.RequestedRedirect
	if override != nil {
		if override.Redirect != "" {
			redirect = override.Redirect
		}
		if len(override.Roles) > 0 || len(override.Permissions) > 0 {
			extra = &session.ExtraClaims{Roles: override.Roles, Permissions: override.Permissions}
			user.Roles = override.Roles
			user.Permissions = override.Permissions
		}
	}

	a.emit(Event{Kind: EventSuccess, Provider: providerName, User: user, Tokens: tokens})

	token, err := a.sessions.CreateToken(*user, extra)
	if err != nil {
		return nil, err
	}

	return &CallbackResult{
		RedirectURL:  a.SafeRedirect(redirect),
		User:         user,
		SessionToken: token,
		CookieHeader: a.sessions.CookieHeader(token),
	}, nil
}

func (a *AuthKit) callSuccess(ctx context.Context, provider string, user *domain.AuthUser, tokens *domain.TokenSet) (override *SuccessOverride) {
	if a.cfg.Hooks.OnSuccess == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Str("provider", provider).
				Msg("success hook panicked; continuing without override")
			override = nil
		}
	}()
	ov, err := a.cfg.Hooks.OnSuccess(ctx, provider, user, tokens)
	if err != nil {
		log.Warn().Err(err).Str("provider", provider).
			Msg("success hook failed; continuing without override")
		return nil
	}
	return ov
}

// ErrorRedirect is the failure counterpart of CallbackResult.
type ErrorRedirect struct {
	RedirectURL string
}

// CompleteCallbackError runs the error hook, emits the error event and
// resolves where to send the browser after a failed callback. The default
// target is "{BasePath}/error".
func (a *AuthKit) CompleteCallbackError(ctx context.Context, providerName string, cause error) *ErrorRedirect {
	redirect := a.cfg.BasePath + "/error"
	if a.cfg.Hooks.OnError != nil {
		if ov := a.callError(ctx, providerName, cause); ov != nil && ov.Redirect != "" {
			redirect = ov.Redirect
		}
	}

	a.emit(Event{Kind: EventError, Provider: providerName, Err: cause})

	return &ErrorRedirect{RedirectURL: a.SafeRedirect(redirect)}
}

func (a *AuthKit) callError(ctx context.Context, provider string, cause error) (override *ErrorOverride) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Str("provider", provider).
				Msg("error hook panicked; using default redirect")
			override = nil
		}
	}()
	return a.cfg.Hooks.OnError(ctx, provider, cause)
}

// LogoutResult carries the cookie-clearing header and the post-logout
// redirect.
type LogoutResult struct {
	RedirectURL  string
	CookieHeader string
}

// CompleteLogout clears the session cookie. The requested redirect goes
// through the same safety check as post-login redirects.
func (a *AuthKit) CompleteLogout(requestedRedirect string) *LogoutResult {
	a.emit(Event{Kind: EventLogout})
	return &LogoutResult{
		RedirectURL:  a.SafeRedirect(requestedRedirect),
		CookieHeader: a.sessions.ClearCookieHeader(),
	}
}

// SafeRedirect validates a post-login/logout redirect target. Relative
// paths pass (protocol-relative "//" does not). Absolute URLs pass only
// when the allow list contains the exact URL or its origin. Everything
// else falls back to "/".
func (a *AuthKit) SafeRedirect(target string) string {
	if target == "" {
		return "/"
	}
	if strings.HasPrefix(target, "//") {
		return "/"
	}
	if strings.HasPrefix(target, "/") {
		return target
	}

	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" || u.Host == "" {
		// Not confidently relative; refuse rather than guess.
		return "/"
	}
	origin := u.Scheme + "://" + u.Host
	for _, entry := range a.cfg.AllowedRedirects {
		if target == entry || origin == strings.TrimRight(entry, "/") {
			return target
		}
	}
	return "/"
}

// StateCookieHeader builds the Set-Cookie header storing the CSRF state
// between login initiation and the callback.
func (a *AuthKit) StateCookieHeader(state string) string {
	return a.transientCookie(StateCookieName, state, transientCookieMaxAge)
}

// VerifierCookieHeader does the same for the PKCE verifier.
func (a *AuthKit) VerifierCookieHeader(verifier string) string {
	return a.transientCookie(VerifierCookieName, verifier, transientCookieMaxAge)
}

// ClearStateCookieHeader removes the transient state cookie after the
// callback consumed it.
func (a *AuthKit) ClearStateCookieHeader() string {
	return a.transientCookie(StateCookieName, "", -1)
}

// ClearVerifierCookieHeader removes the transient verifier cookie.
func (a *AuthKit) ClearVerifierCookieHeader() string {
	return a.transientCookie(VerifierCookieName, "", -1)
}

func (a *AuthKit) transientCookie(name, value string, maxAge int) string {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   a.cfg.Session.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	return c.String()
}

// generateState returns 32 bytes of entropy, URL-safe base64 encoded.
func generateState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
