package authkit_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	authkit "go.pilab.hu/authkit"
	"go.pilab.hu/authkit/domain"
	"go.pilab.hu/authkit/providers"
	"go.pilab.hu/authkit/ratelimit"
	"go.pilab.hu/authkit/session"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// stubProvider satisfies providers.Provider with canned responses and
// records what the flow passed to it.
type stubProvider struct {
	name string
	pkce bool

	conf *oauth2.Config

	tokens      *domain.TokenSet
	exchangeErr error
	user        *domain.AuthUser
	fetchErr    error

	gotState       string
	gotCallbackURL string
	gotCode        string
	gotAuthOpts    int
	gotExtra       map[string]string
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) AuthCodeURL(state, callbackURL string, opts ...oauth2.AuthCodeOption) (string, error) {
	s.gotState = state
	s.gotCallbackURL = callbackURL
	s.gotAuthOpts = len(opts)
	return "https://vendor.example/authorize?state=" + state, nil
}

func (s *stubProvider) Exchange(_ context.Context, callbackURL, code string, opts ...oauth2.AuthCodeOption) (*domain.TokenSet, error) {
	s.gotCallbackURL = callbackURL
	s.gotCode = code
	s.gotAuthOpts = len(opts)
	if s.exchangeErr != nil {
		return nil, s.exchangeErr
	}
	return s.tokens, nil
}

func (s *stubProvider) FetchProfile(_ context.Context, _ *domain.TokenSet, extra map[string]string) (*domain.AuthUser, error) {
	s.gotExtra = extra
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	u := *s.user
	return &u, nil
}

func (s *stubProvider) OAuth2Config(string) (*oauth2.Config, error) {
	if s.conf == nil {
		return nil, errors.New("no oauth2 config stubbed")
	}
	return s.conf, nil
}

func (s *stubProvider) UsesPKCE() bool { return s.pkce }

func newStub(name string) *stubProvider {
	return &stubProvider{
		name: name,
		tokens: &domain.TokenSet{
			AccessToken:  "at-1",
			RefreshToken: "rt-1",
			ExpiresAt:    time.Now().Add(time.Hour),
		},
		user: &domain.AuthUser{ID: "u1", Email: "u1@example.com", Name: "User One", Provider: name},
	}
}

func newKit(t *testing.T, mutate func(*authkit.Config)) (*authkit.AuthKit, *stubProvider) {
	t.Helper()
	stub := newStub("stub")
	cfg := authkit.Config{
		Session:   session.Config{Secret: testSecret},
		BaseURL:   "https://app.example.com",
		Providers: []providers.Provider{stub},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := authkit.New(cfg)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, stub
}

func TestNewRejectsMissingSecret(t *testing.T) {
	_, err := authkit.New(authkit.Config{})
	require.Error(t, err)
	assert.ErrorIs(t, err, authkit.ErrConfigInvalid)
	assert.ErrorIs(t, err, authkit.ErrSecretRequired)
}

func TestNewRejectsShortSecret(t *testing.T) {
	_, err := authkit.New(authkit.Config{Session: session.Config{Secret: "short"}})
	assert.ErrorIs(t, err, authkit.ErrSecretTooShort)
}

func TestNewRejectsDuplicateProviders(t *testing.T) {
	_, err := authkit.New(authkit.Config{
		Session:   session.Config{Secret: testSecret},
		Providers: []providers.Provider{newStub("dup"), newStub("dup")},
	})
	assert.ErrorIs(t, err, authkit.ErrConfigInvalid)
}

func TestCallbackURLDerivation(t *testing.T) {
	a, _ := newKit(t, nil)
	assert.Equal(t, "https://app.example.com/auth/callback/stub", a.CallbackURL("stub"))

	a2, _ := newKit(t, func(c *authkit.Config) { c.BasePath = "/login" })
	assert.Equal(t, "https://app.example.com/login/callback/stub", a2.CallbackURL("stub"))
}

func TestBeginLoginUnknownProvider(t *testing.T) {
	a, _ := newKit(t, nil)
	_, err := a.BeginLogin(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, authkit.ErrProviderNotFound)
}

func TestBeginLoginGeneratesState(t *testing.T) {
	a, stub := newKit(t, nil)

	lr, err := a.BeginLogin(context.Background(), "stub", nil)
	require.NoError(t, err)
	// 32 bytes of entropy rendered as unpadded URL-safe base64.
	assert.Len(t, lr.State, 43)
	assert.Equal(t, lr.State, stub.gotState)
	assert.Contains(t, lr.URL, lr.State)
	assert.Equal(t, "https://app.example.com/auth/callback/stub", stub.gotCallbackURL)
	assert.Empty(t, lr.Verifier)
	assert.Zero(t, stub.gotAuthOpts)
}

func TestBeginLoginPKCEVerifier(t *testing.T) {
	a, _ := newKit(t, func(c *authkit.Config) {
		c.Providers = []providers.Provider{&stubProvider{name: "stub", pkce: true}}
	})

	lr, err := a.BeginLogin(context.Background(), "stub", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, lr.Verifier)

	// Distinct logins must get distinct verifiers; nothing is held on the
	// provider between calls.
	lr2, err := a.BeginLogin(context.Background(), "stub", nil)
	require.NoError(t, err)
	assert.NotEqual(t, lr.Verifier, lr2.Verifier)
	assert.NotEqual(t, lr.State, lr2.State)
}

func TestBeginLoginRateLimited(t *testing.T) {
	a, _ := newKit(t, func(c *authkit.Config) {
		c.RateLimit = &ratelimit.Config{Window: time.Minute, Max: 2}
	})
	req := &domain.RequestContext{ClientIP: "10.0.0.1"}

	_, err := a.BeginLogin(context.Background(), "stub", req)
	require.NoError(t, err)
	_, err = a.BeginLogin(context.Background(), "stub", req)
	require.NoError(t, err)
	_, err = a.BeginLogin(context.Background(), "stub", req)
	assert.ErrorIs(t, err, authkit.ErrRateLimited)

	// Another client is unaffected.
	_, err = a.BeginLogin(context.Background(), "stub", &domain.RequestContext{ClientIP: "10.0.0.2"})
	assert.NoError(t, err)
}

func TestBeginLoginHookFailureSwallowed(t *testing.T) {
	var called bool
	a, _ := newKit(t, func(c *authkit.Config) {
		c.Hooks.OnBeforeAuth = func(context.Context, string, *domain.RequestContext) error {
			called = true
			return errors.New("hook blew up")
		}
	})

	_, err := a.BeginLogin(context.Background(), "stub", nil)
	assert.NoError(t, err)
	assert.True(t, called)
}

func TestCompleteCallbackCSRF(t *testing.T) {
	a, _ := newKit(t, nil)
	ctx := context.Background()

	cases := []struct{ state, stored string }{
		{"a", "b"},
		{"", "b"},
		{"a", ""},
		{"", ""},
	}
	for _, c := range cases {
		_, err := a.CompleteCallback(ctx, "stub", authkit.CallbackRequest{
			Code: "code", State: c.state, StoredState: c.stored,
		})
		assert.ErrorIs(t, err, authkit.ErrCSRFMismatch)
	}
}

func TestCompleteCallbackMissingCode(t *testing.T) {
	a, _ := newKit(t, nil)
	_, err := a.CompleteCallback(context.Background(), "stub", authkit.CallbackRequest{
		State: "s", StoredState: "s",
	})
	assert.ErrorIs(t, err, authkit.ErrMissingCode)
}

func TestCompleteCallbackEndToEnd(t *testing.T) {
	var kit *authkit.AuthKit
	var tokensVisibleInHook *domain.TokenSet
	a, stub := newKit(t, func(c *authkit.Config) {
		c.Hooks.OnSuccess = func(ctx context.Context, provider string, user *domain.AuthUser, tokens *domain.TokenSet) (*authkit.SuccessOverride, error) {
			// Persistence happens before this hook runs.
			tokensVisibleInHook, _ = kit.Tokens().Get(ctx, domain.TokenKey(provider, user.ID))
			return &authkit.SuccessOverride{
				Redirect: "/dashboard",
				Roles:    []string{"admin"},
			}, nil
		}
	})
	kit = a

	res, err := a.CompleteCallback(context.Background(), "stub", authkit.CallbackRequest{
		Code: "code-1", State: "s", StoredState: "s",
		Verifier: "verif-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "/dashboard", res.RedirectURL)
	assert.Equal(t, "code-1", stub.gotCode)
	assert.Equal(t, 1, stub.gotAuthOpts)

	assert.Contains(t, res.CookieHeader, "authkit_session=")
	assert.Contains(t, res.CookieHeader, "Max-Age=86400")
	assert.Contains(t, res.CookieHeader, "HttpOnly")
	assert.Contains(t, res.CookieHeader, "SameSite=Lax")

	user, err := a.Sessions().VerifyToken(res.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, []string{"admin"}, user.Roles)

	stored, err := a.Tokens().Get(context.Background(), "stub:u1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "at-1", stored.AccessToken)

	require.NotNil(t, tokensVisibleInHook)
	assert.Equal(t, "at-1", tokensVisibleInHook.AccessToken)
}

func TestCompleteCallbackHookErrorSwallowed(t *testing.T) {
	a, _ := newKit(t, func(c *authkit.Config) {
		c.Hooks.OnSuccess = func(context.Context, string, *domain.AuthUser, *domain.TokenSet) (*authkit.SuccessOverride, error) {
			return nil, errors.New("application hook failed")
		}
	})

	res, err := a.CompleteCallback(context.Background(), "stub", authkit.CallbackRequest{
		Code: "c", State: "s", StoredState: "s",
	})
	require.NoError(t, err)
	assert.Equal(t, "/", res.RedirectURL)
}

func TestCompleteCallbackExchangeErrorPropagates(t *testing.T) {
	a, stub := newKit(t, nil)
	stub.exchangeErr = errors.New("invalid_grant")

	_, err := a.CompleteCallback(context.Background(), "stub", authkit.CallbackRequest{
		Code: "c", State: "s", StoredState: "s",
	})
	assert.Error(t, err)
}

func TestCompleteCallbackError(t *testing.T) {
	a, _ := newKit(t, nil)
	er := a.CompleteCallbackError(context.Background(), "stub", errors.New("boom"))
	assert.Equal(t, "/auth/error", er.RedirectURL)
}

func TestCompleteCallbackErrorHookOverride(t *testing.T) {
	a, _ := newKit(t, func(c *authkit.Config) {
		c.Hooks.OnError = func(context.Context, string, error) *authkit.ErrorOverride {
			return &authkit.ErrorOverride{Redirect: "https://evil.com/phish"}
		}
	})
	// Unsafe overrides go through the same redirect check.
	er := a.CompleteCallbackError(context.Background(), "stub", errors.New("boom"))
	assert.Equal(t, "/", er.RedirectURL)
}

func TestCompleteLogout(t *testing.T) {
	a, _ := newKit(t, nil)
	lr := a.CompleteLogout("/bye")
	assert.Equal(t, "/bye", lr.RedirectURL)
	assert.Contains(t, lr.CookieHeader, "authkit_session=")
	assert.Contains(t, lr.CookieHeader, "Max-Age=0")
}

func TestSafeRedirect(t *testing.T) {
	noList, _ := newKit(t, nil)
	withList, _ := newKit(t, func(c *authkit.Config) {
		c.AllowedRedirects = []string{"https://good.com"}
	})

	cases := []struct {
		name   string
		kit    *authkit.AuthKit
		target string
		want   string
	}{
		{"relative passes", noList, "/dashboard", "/dashboard"},
		{"empty falls back", noList, "", "/"},
		{"protocol-relative rejected", noList, "//evil.com/x", "/"},
		{"absolute rejected without list", noList, "https://evil.com", "/"},
		{"http rejected without list", noList, "http://evil.com", "/"},
		{"not confidently relative", noList, "dashboard", "/"},
		{"allow-listed origin passes", withList, "https://good.com/x", "https://good.com/x"},
		{"exact match passes", withList, "https://good.com", "https://good.com"},
		{"other origin rejected", withList, "https://evil.com", "/"},
		{"garbage with list", withList, "::not-a-url::", "/"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, c.kit.SafeRedirect(c.target))
		})
	}
}

func TestTransientCookieHeaders(t *testing.T) {
	a, _ := newKit(t, nil)

	h := a.StateCookieHeader("state-value")
	assert.True(t, strings.HasPrefix(h, "authkit_state=state-value"))
	assert.Contains(t, h, "Max-Age=600")
	assert.Contains(t, h, "HttpOnly")

	cleared := a.ClearStateCookieHeader()
	assert.Contains(t, cleared, "Max-Age=0")
}
