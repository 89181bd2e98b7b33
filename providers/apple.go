package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"go.pilab.hu/authkit/domain"
)

var appleEndpoint = oauth2.Endpoint{
	AuthURL:  "https://appleid.apple.com/auth/authorize",
	TokenURL: "https://appleid.apple.com/auth/token",
}

// Apple implements Provider for Sign in with Apple.
//
// Apple has no userinfo endpoint: the profile comes from the identity token
// delivered at code-exchange time. The user's name is sent exactly once per
// account lifetime, as a "user" form field on the first callback, and must
// be passed in through extra["user"].
//
// The ClientSecret is expected to be a pre-generated Apple client secret
// JWT.
type Apple struct {
	base
}

// NewApple creates an Apple provider with the name and email scopes always
// requested.
func NewApple(cfg Config) *Apple {
	cfg.Scopes = ensureScopes(cfg.Scopes, "name", "email")
	return &Apple{base{
		name:     "apple",
		cfg:      cfg,
		endpoint: appleEndpoint,
	}}
}

// AuthCodeURL forces response_mode=form_post, which Apple requires whenever
// the name or email scope is requested.
func (a *Apple) AuthCodeURL(state, callbackURL string, opts ...oauth2.AuthCodeOption) (string, error) {
	opts = append(opts, oauth2.SetAuthURLParam("response_mode", "form_post"))
	return a.base.AuthCodeURL(state, callbackURL, opts...)
}

func (a *Apple) FetchProfile(_ context.Context, tokens *domain.TokenSet, extra map[string]string) (*domain.AuthUser, error) {
	if tokens.IDToken == "" {
		return nil, &Failure{Provider: a.name, Body: "id_token missing from token response"}
	}

	claims, raw, err := decodeIDTokenClaims(tokens.IDToken)
	if err != nil {
		return nil, &Failure{Provider: a.name, Body: err.Error()}
	}
	if claims.Sub == "" {
		return nil, fmt.Errorf("apple: id_token missing sub: %w", ErrFetchProfile)
	}

	user := &domain.AuthUser{
		ID:            claims.Sub,
		Email:         claims.Email,
		Provider:      a.name,
		EmailVerified: claims.EmailVerified.Bool(),
		Raw:           raw,
	}
	if payload, ok := extra["user"]; ok && payload != "" {
		user.Name = appleNameFromUserPayload(payload)
	}
	return user, nil
}

type appleIDClaims struct {
	Sub           string     `json:"sub"`
	Email         string     `json:"email"`
	EmailVerified stringBool `json:"email_verified"`
}

// stringBool tolerates Apple's habit of sending booleans as the strings
// "true"/"false".
type stringBool string

func (s *stringBool) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		if t {
			*s = "true"
		} else {
			*s = "false"
		}
	case string:
		*s = stringBool(t)
	}
	return nil
}

func (s stringBool) Bool() bool { return s == "true" }

// decodeIDTokenClaims extracts the payload claims of a JWT without
// verifying the signature. The exchange itself just succeeded against the
// vendor over TLS, which is the trust anchor here.
func decodeIDTokenClaims(idToken string) (*appleIDClaims, map[string]any, error) {
	parts := strings.Split(idToken, ".")
	if len(parts) < 2 {
		return nil, nil, fmt.Errorf("invalid id_token format")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode id_token payload: %w", err)
	}
	claims := &appleIDClaims{}
	if err := json.Unmarshal(payload, claims); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal id_token claims: %w", err)
	}
	raw := map[string]any{}
	_ = json.Unmarshal(payload, &raw)
	return claims, raw, nil
}

// appleNameFromUserPayload parses the first-login-only "user" form field,
// a JSON document of the shape {"name":{"firstName":...,"lastName":...}}.
func appleNameFromUserPayload(payload string) string {
	if unescaped, err := url.QueryUnescape(payload); err == nil {
		payload = unescaped
	}
	var doc struct {
		Name struct {
			FirstName string `json:"firstName"`
			LastName  string `json:"lastName"`
		} `json:"name"`
	}
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimSpace(doc.Name.FirstName) + " " + strings.TrimSpace(doc.Name.LastName))
}

var _ Provider = (*Apple)(nil)
