// Package session issues and verifies the toolkit's signed, self-contained
// session tokens and builds their cookie representation.
//
// The token is the only copy of session state: there is no server-side
// session table. Logout clears the cookie; the token itself stays
// cryptographically valid until its natural expiry.
package session

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"go.pilab.hu/authkit/domain"
)

// Issuer is the fixed "iss" claim stamped into every session token.
const Issuer = "authkit"

// ErrSessionInvalid is returned for every verification failure: bad
// signature, expiry, wrong issuer, or a string that is not a token at all.
// No further detail is exposed to callers.
var ErrSessionInvalid = errors.New("session token invalid or expired")

// Config configures the session Manager. Validation happens in authkit.New;
// the Manager assumes a non-empty secret.
type Config struct {
	// Secret seeds the HMAC signing key. Any non-empty string is usable as
	// raw key material.
	Secret string
	// CookieName is the session cookie's name. Default "authkit_session".
	CookieName string
	// MaxAge is the token and cookie lifetime in whole seconds.
	// Default 86400 (24h).
	MaxAge int
	// Secure controls the cookie's Secure attribute.
	Secure bool
}

// ExtraClaims are the optional role/permission claims the success hook may
// attach to a freshly minted session.
type ExtraClaims struct {
	Roles       []string
	Permissions []string
}

type sessionClaims struct {
	User        domain.AuthUser `json:"user"`
	Roles       []string        `json:"roles,omitempty"`
	Permissions []string        `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// Manager creates and verifies session tokens signed with HS256.
type Manager struct {
	key        []byte
	cookieName string
	maxAge     time.Duration
	secure     bool

	// now is swappable in tests.
	now func() time.Time
}

// NewManager creates a session Manager from cfg.
func NewManager(cfg Config) *Manager {
	name := cfg.CookieName
	if name == "" {
		name = "authkit_session"
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 86400
	}
	return &Manager{
		key:        []byte(cfg.Secret),
		cookieName: name,
		maxAge:     time.Duration(maxAge) * time.Second,
		secure:     cfg.Secure,
		now:        time.Now,
	}
}

// CookieName returns the configured session cookie name.
func (m *Manager) CookieName() string { return m.cookieName }

// MaxAge returns the configured session lifetime.
func (m *Manager) MaxAge() time.Duration { return m.maxAge }

// CreateToken mints a signed session token for user. Roles and permissions
// from extra become embedded claims; they are not persisted anywhere else.
func (m *Manager) CreateToken(user domain.AuthUser, extra *ExtraClaims) (string, error) {
	now := m.now()
	claims := sessionClaims{
		User: user,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.maxAge)),
		},
	}
	if extra != nil {
		claims.Roles = extra.Roles
		claims.Permissions = extra.Permissions
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.key)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// VerifyToken checks signature, expiry and issuer, and returns the embedded
// user with any role/permission claims reattached. Every failure mode,
// including malformed input, maps to ErrSessionInvalid.
func (m *Manager) VerifyToken(token string) (*domain.AuthUser, error) {
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return m.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrSessionInvalid
	}

	// Expiry boundary is inclusive: a check at exactly expiresAt fails.
	if claims.ExpiresAt == nil || !m.now().Before(claims.ExpiresAt.Time) {
		return nil, ErrSessionInvalid
	}

	user := claims.User
	if len(claims.Roles) > 0 {
		user.Roles = claims.Roles
	}
	if len(claims.Permissions) > 0 {
		user.Permissions = claims.Permissions
	}
	return &user, nil
}

// CookieHeader renders the Set-Cookie value carrying token.
func (m *Manager) CookieHeader(token string) string {
	c := http.Cookie{
		Name:     m.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.maxAge / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   m.secure,
	}
	return c.String()
}

// ClearCookieHeader renders the Set-Cookie value that instructs the client
// to discard the session cookie.
func (m *Manager) ClearCookieHeader() string {
	c := http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   0,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	s := c.String()
	// net/http omits Max-Age=0 (it uses Max-Age<0 for deletion); the clear
	// cookie contract wants an explicit zero.
	if !strings.Contains(s, "Max-Age=") {
		s += "; Max-Age=0"
	}
	return s
}

// TokenFromRequest extracts the session token from the request's parsed
// cookies, falling back to the raw Cookie header. Returns "" when absent.
func (m *Manager) TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(m.cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return m.TokenFromCookieHeader(r.Header.Get("Cookie"))
}

// TokenFromCookieHeader parses a raw Cookie header value. Adapters whose
// frameworks do not expose an *http.Request use this directly.
func (m *Manager) TokenFromCookieHeader(header string) string {
	if header == "" {
		return ""
	}
	prefix := m.cookieName + "="
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, prefix) {
			return strings.TrimPrefix(part, prefix)
		}
	}
	return ""
}
