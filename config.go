package authkit

import (
	"context"
	"fmt"
	"strings"

	"go.pilab.hu/authkit/domain"
	"go.pilab.hu/authkit/providers"
	"go.pilab.hu/authkit/ratelimit"
	"go.pilab.hu/authkit/session"
	"go.pilab.hu/authkit/store"
)

// SuccessOverride is what OnSuccess may return to influence the login
// result: a redirect target and the roles/permissions to embed in the
// session.
type SuccessOverride struct {
	Redirect    string
	Roles       []string
	Permissions []string
}

// ErrorOverride lets OnError steer the failure redirect.
type ErrorOverride struct {
	Redirect string
}

// Hooks are optional integration points called synchronously by the flow.
// OnBeforeAuth and OnSuccess/OnError failures are logged and swallowed so
// application callbacks cannot break the authentication pipeline.
type Hooks struct {
	// OnBeforeAuth runs before the provider redirect is issued.
	OnBeforeAuth func(ctx context.Context, provider string, req *domain.RequestContext) error
	// OnSuccess runs after the user profile is fetched and tokens are
	// persisted, before the session cookie is minted. It may return
	// overrides for the redirect and the session's roles/permissions.
	OnSuccess func(ctx context.Context, provider string, user *domain.AuthUser, tokens *domain.TokenSet) (*SuccessOverride, error)
	// OnError runs when a callback fails. It may override the error
	// redirect.
	OnError func(ctx context.Context, provider string, err error) *ErrorOverride
	// OnTokenRefresh runs after a successful background token refresh.
	OnTokenRefresh func(ctx context.Context, provider string, userID string, tokens *domain.TokenSet)
}

// Config assembles a toolkit instance.
type Config struct {
	// Session configures signing and the cookie shape. Secret is
	// mandatory.
	Session session.Config

	// BaseURL is the externally visible origin of the application,
	// e.g. "https://app.example.com". Used to derive provider callback
	// URLs.
	BaseURL string
	// BasePath is the mount point of the auth routes. Defaults to
	// "/auth".
	BasePath string

	// AllowedRedirects is the absolute-URL allow list consulted by the
	// post-login redirect check. Entries are exact URLs or origins.
	AllowedRedirects []string

	// Providers to register at construction time. More can be added later
	// with RegisterProvider.
	Providers []providers.Provider

	// TokenStore persists provider tokens per (provider, user). Defaults
	// to the in-memory store.
	TokenStore store.TokenStore
	// Linker maintains the app-user to provider-identity mapping.
	// Defaults to the in-memory linker.
	Linker store.AccountLinker

	// RateLimit throttles login initiation per client IP. Nil selects the
	// default of 10 per minute; DisableRateLimit turns throttling off.
	RateLimit        *ratelimit.Config
	DisableRateLimit bool

	Hooks Hooks
}

func (c *Config) validate() error {
	if c.Session.Secret == "" {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, ErrSecretRequired)
	}
	if len(c.Session.Secret) < 32 {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, ErrSecretTooShort)
	}
	if c.BasePath != "" && !strings.HasPrefix(c.BasePath, "/") {
		return fmt.Errorf("%w: base path %q must start with a slash", ErrConfigInvalid, c.BasePath)
	}
	seen := make(map[string]struct{}, len(c.Providers))
	for _, p := range c.Providers {
		if p == nil {
			return fmt.Errorf("%w: nil provider", ErrConfigInvalid)
		}
		if _, dup := seen[p.Name()]; dup {
			return fmt.Errorf("%w: provider %q registered twice", ErrConfigInvalid, p.Name())
		}
		seen[p.Name()] = struct{}{}
	}
	return nil
}
