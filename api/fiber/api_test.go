package authkitfiber_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	authkit "go.pilab.hu/authkit"
	authkitfiber "go.pilab.hu/authkit/api/fiber"
	"go.pilab.hu/authkit/domain"
	"go.pilab.hu/authkit/middleware"
	"go.pilab.hu/authkit/providers"
	"go.pilab.hu/authkit/session"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type stubProvider struct{ name string }

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) AuthCodeURL(state, _ string, _ ...oauth2.AuthCodeOption) (string, error) {
	return "https://vendor.example/authorize?state=" + state, nil
}

func (s *stubProvider) Exchange(context.Context, string, string, ...oauth2.AuthCodeOption) (*domain.TokenSet, error) {
	return &domain.TokenSet{AccessToken: "at-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (s *stubProvider) FetchProfile(context.Context, *domain.TokenSet, map[string]string) (*domain.AuthUser, error) {
	return &domain.AuthUser{ID: "u1", Provider: s.name}, nil
}

func (s *stubProvider) OAuth2Config(string) (*oauth2.Config, error) {
	return &oauth2.Config{}, nil
}

func setup(t *testing.T) (*fiber.App, *authkit.AuthKit) {
	t.Helper()

	kit, err := authkit.New(authkit.Config{
		Session:   session.Config{Secret: testSecret},
		BaseURL:   "https://app.example.com",
		Providers: []providers.Provider{&stubProvider{name: "stub"}},
		Hooks: authkit.Hooks{
			OnSuccess: func(context.Context, string, *domain.AuthUser, *domain.TokenSet) (*authkit.SuccessOverride, error) {
				return &authkit.SuccessOverride{Redirect: "/dashboard"}, nil
			},
		},
	})
	require.NoError(t, err)
	t.Cleanup(kit.Close)

	app := fiber.New()
	authkitfiber.New(kit).RegisterRoutes(app)
	return app, kit
}

func TestLoginRedirectsToVendor(t *testing.T) {
	app, _ := setup(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/auth/login/stub", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Location"), "https://vendor.example/authorize?state=")

	var stateCookie bool
	for _, c := range resp.Header.Values("Set-Cookie") {
		if strings.HasPrefix(c, authkit.StateCookieName+"=") {
			stateCookie = true
		}
	}
	assert.True(t, stateCookie)
}

func TestLoginUnknownProvider(t *testing.T) {
	app, _ := setup(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/auth/login/nope", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCallbackSuccess(t *testing.T) {
	app, _ := setup(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback/stub?code=c1&state=s1", nil)
	req.AddCookie(&http.Cookie{Name: authkit.StateCookieName, Value: "s1"})

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))

	var sessionCookie bool
	for _, c := range resp.Header.Values("Set-Cookie") {
		if strings.HasPrefix(c, "authkit_session=") {
			sessionCookie = true
		}
	}
	assert.True(t, sessionCookie)
}

func TestCallbackCSRFMismatch(t *testing.T) {
	app, _ := setup(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback/stub?code=c1&state=s1", nil)
	req.AddCookie(&http.Cookie{Name: authkit.StateCookieName, Value: "other"})

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/auth/error", resp.Header.Get("Location"))
}

func TestProtect(t *testing.T) {
	_, kit := setup(t)
	api := authkitfiber.New(kit)

	app := fiber.New()
	app.Get("/admin", api.Protect(middleware.Options{RequiredRoles: []string{"admin"}}), func(c fiber.Ctx) error {
		u := authkitfiber.UserFromContext(c)
		require.NotNil(t, u)
		return c.SendString(u.ID)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/admin", nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := kit.Sessions().CreateToken(domain.AuthUser{ID: "u1"}, &session.ExtraClaims{Roles: []string{"viewer"}})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(&http.Cookie{Name: "authkit_session", Value: token})
	resp, err = app.Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	token, err = kit.Sessions().CreateToken(domain.AuthUser{ID: "u1"}, &session.ExtraClaims{Roles: []string{"admin"}})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(&http.Cookie{Name: "authkit_session", Value: token})
	resp, err = app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogout(t *testing.T) {
	app, _ := setup(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/auth/logout?redirect=/bye", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/bye", resp.Header.Get("Location"))
}
