package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/authkit/domain"
	"go.pilab.hu/authkit/middleware"
	"go.pilab.hu/authkit/session"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func sessionToken(t *testing.T, sm *session.Manager, roles, perms []string) string {
	t.Helper()
	token, err := sm.CreateToken(domain.AuthUser{ID: "u1", Provider: "google"}, &session.ExtraClaims{
		Roles:       roles,
		Permissions: perms,
	})
	require.NoError(t, err)
	return token
}

func TestGateNoTokenIsUnauthenticated(t *testing.T) {
	sm := session.NewManager(session.Config{Secret: testSecret})
	gate := middleware.NewGate(sm, middleware.Options{RequiredRoles: []string{"admin"}})

	d := gate.Evaluate("")
	// Missing credential is always 401-class, never 403, even with role
	// requirements configured.
	assert.Equal(t, middleware.OutcomeUnauthenticated, d.Outcome)
	assert.Nil(t, d.User)
}

func TestGateInvalidTokenIsUnauthenticated(t *testing.T) {
	sm := session.NewManager(session.Config{Secret: testSecret})
	gate := middleware.NewGate(sm, middleware.Options{})

	d := gate.Evaluate("not-a-token")
	assert.Equal(t, middleware.OutcomeUnauthenticated, d.Outcome)
}

func TestGateRoleMismatchIsForbidden(t *testing.T) {
	sm := session.NewManager(session.Config{Secret: testSecret})
	gate := middleware.NewGate(sm, middleware.Options{RequiredRoles: []string{"admin"}})

	d := gate.Evaluate(sessionToken(t, sm, []string{"viewer"}, nil))
	assert.Equal(t, middleware.OutcomeForbidden, d.Outcome)
}

func TestGateRoleORSemantics(t *testing.T) {
	sm := session.NewManager(session.Config{Secret: testSecret})
	gate := middleware.NewGate(sm, middleware.Options{RequiredRoles: []string{"admin", "editor"}})

	d := gate.Evaluate(sessionToken(t, sm, []string{"editor"}, nil))
	require.Equal(t, middleware.OutcomeAuthorized, d.Outcome)
	require.NotNil(t, d.User)
	assert.Equal(t, []string{"editor"}, d.User.Roles)
}

func TestGatePermissionCheck(t *testing.T) {
	sm := session.NewManager(session.Config{Secret: testSecret})
	gate := middleware.NewGate(sm, middleware.Options{RequiredPermissions: []string{"posts:write"}})

	d := gate.Evaluate(sessionToken(t, sm, nil, []string{"posts:read"}))
	assert.Equal(t, middleware.OutcomeForbidden, d.Outcome)

	d = gate.Evaluate(sessionToken(t, sm, nil, []string{"posts:read", "posts:write"}))
	assert.Equal(t, middleware.OutcomeAuthorized, d.Outcome)
}

func TestGateRolesAndPermissionsBothRequired(t *testing.T) {
	sm := session.NewManager(session.Config{Secret: testSecret})
	gate := middleware.NewGate(sm, middleware.Options{
		RequiredRoles:       []string{"admin"},
		RequiredPermissions: []string{"users:delete"},
	})

	// Role passes, permission fails: forbidden.
	d := gate.Evaluate(sessionToken(t, sm, []string{"admin"}, []string{"users:read"}))
	assert.Equal(t, middleware.OutcomeForbidden, d.Outcome)

	d = gate.Evaluate(sessionToken(t, sm, []string{"admin"}, []string{"users:delete"}))
	assert.Equal(t, middleware.OutcomeAuthorized, d.Outcome)
}

func TestGateNoRequirementsJustAuthenticates(t *testing.T) {
	sm := session.NewManager(session.Config{Secret: testSecret})
	gate := middleware.NewGate(sm, middleware.Options{})

	d := gate.Evaluate(sessionToken(t, sm, nil, nil))
	require.Equal(t, middleware.OutcomeAuthorized, d.Outcome)
	assert.Equal(t, "u1", d.User.ID)
}

func TestGateRedirectsCarriedOnOutcome(t *testing.T) {
	sm := session.NewManager(session.Config{Secret: testSecret})
	gate := middleware.NewGate(sm, middleware.Options{
		RedirectOnUnauth:    "/login",
		RedirectOnForbidden: "/denied",
		RequiredRoles:       []string{"admin"},
	})

	d := gate.Evaluate("")
	assert.Equal(t, "/login", d.Redirect)

	d = gate.Evaluate(sessionToken(t, sm, []string{"viewer"}, nil))
	assert.Equal(t, "/denied", d.Redirect)
}

func TestGateCheckExtractsFromRequest(t *testing.T) {
	sm := session.NewManager(session.Config{Secret: testSecret, CookieName: "app_session"})
	gate := middleware.NewGate(sm, middleware.Options{})
	token := sessionToken(t, sm, nil, nil)

	r := httptest.NewRequest(http.MethodGet, "/private", nil)
	r.AddCookie(&http.Cookie{Name: "app_session", Value: token})
	d := gate.Check(r)
	assert.Equal(t, middleware.OutcomeAuthorized, d.Outcome)

	d = gate.CheckCookieHeader("app_session=" + token)
	assert.Equal(t, middleware.OutcomeAuthorized, d.Outcome)
}
