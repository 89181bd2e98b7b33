// Package authkit is a provider-agnostic OAuth2/OIDC login toolkit: it
// orchestrates the authorization-code flow against registered providers,
// mints signed session cookies, persists provider tokens, links provider
// identities to application users and guards routes through the
// middleware gate. Framework bindings live under api/.
package authkit

import (
	"fmt"
	"strings"
	"sync"

	"go.pilab.hu/authkit/middleware"
	"go.pilab.hu/authkit/providers"
	"go.pilab.hu/authkit/ratelimit"
	"go.pilab.hu/authkit/session"
	"go.pilab.hu/authkit/store"
)

// AuthKit is one configured toolkit instance. Instances are independent:
// each carries its own providers, stores, limiter and event
// subscriptions.
type AuthKit struct {
	cfg      Config
	sessions *session.Manager
	tokens   store.TokenStore
	linker   store.AccountLinker
	limiter  *ratelimit.Limiter
	emitter  emitter

	mu        sync.RWMutex
	providers map[string]providers.Provider
}

// New validates cfg and assembles a toolkit. Missing stores default to
// their in-memory implementations.
func New(cfg Config) (*AuthKit, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.BasePath == "" {
		cfg.BasePath = "/auth"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	a := &AuthKit{
		cfg:       cfg,
		sessions:  session.NewManager(cfg.Session),
		tokens:    cfg.TokenStore,
		linker:    cfg.Linker,
		providers: make(map[string]providers.Provider, len(cfg.Providers)),
	}
	if a.tokens == nil {
		a.tokens = store.NewMemoryTokenStore()
	}
	if a.linker == nil {
		a.linker = store.NewMemoryLinker()
	}
	if !cfg.DisableRateLimit {
		rl := ratelimit.DefaultConfig()
		if cfg.RateLimit != nil {
			rl = *cfg.RateLimit
		}
		a.limiter = ratelimit.New(rl)
	}

	for _, p := range cfg.Providers {
		a.providers[p.Name()] = p
	}
	return a, nil
}

// RegisterProvider adds or replaces a provider after construction.
func (a *AuthKit) RegisterProvider(p providers.Provider) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.providers[p.Name()] = p
}

// Provider looks up a registered provider by name.
func (a *AuthKit) Provider(name string) (providers.Provider, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, ok := a.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return p, nil
}

// ProviderNames lists the registered providers.
func (a *AuthKit) ProviderNames() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.providers))
	for name := range a.providers {
		names = append(names, name)
	}
	return names
}

// CallbackURL derives the redirect URI registered with the vendor:
// "{BaseURL}{BasePath}/callback/{provider}".
func (a *AuthKit) CallbackURL(provider string) string {
	return a.cfg.BaseURL + a.cfg.BasePath + "/callback/" + provider
}

// BasePath returns the mount point of the auth routes.
func (a *AuthKit) BasePath() string {
	return a.cfg.BasePath
}

// Sessions exposes the session manager, e.g. for issuing cookies outside
// the login flow.
func (a *AuthKit) Sessions() *session.Manager {
	return a.sessions
}

// Tokens exposes the token store.
func (a *AuthKit) Tokens() store.TokenStore {
	return a.tokens
}

// Linker exposes the account linker.
func (a *AuthKit) Linker() store.AccountLinker {
	return a.linker
}

// Gate builds a route-protection gate bound to this instance's session
// manager.
func (a *AuthKit) Gate(opts middleware.Options) *middleware.Gate {
	return middleware.NewGate(a.sessions, opts)
}

// Close releases background resources (the rate limiter's cleanup
// goroutine).
func (a *AuthKit) Close() {
	if a.limiter != nil {
		a.limiter.Stop()
	}
}
