package providers

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"

	"go.pilab.hu/authkit/domain"
)

// XUserEndpoint is overridable in tests.
var XUserEndpoint = "https://api.x.com/2/users/me?user.fields=profile_image_url"

var xEndpoint = oauth2.Endpoint{
	AuthURL:  "https://x.com/i/oauth2/authorize",
	TokenURL: "https://api.x.com/2/oauth2/token",
	// X authenticates confidential clients with basic auth on the token
	// endpoint.
	AuthStyle: oauth2.AuthStyleInHeader,
}

// X implements Provider for X (Twitter) OAuth 2.0 login, which mandates
// PKCE on the authorization-code flow. The code verifier is supplied per
// call by the orchestrator; the provider itself is stateless across logins.
type X struct {
	base
}

// NewX creates an X provider. The offline.access scope is always requested
// so X issues refresh tokens.
func NewX(cfg Config) *X {
	cfg.Scopes = ensureScopes(cfg.Scopes, "tweet.read", "users.read", "offline.access")
	return &X{base{
		name:     "x",
		cfg:      cfg,
		endpoint: xEndpoint,
	}}
}

// UsesPKCE marks the provider as requiring a proof-key code exchange.
func (x *X) UsesPKCE() bool { return true }

func (x *X) FetchProfile(ctx context.Context, tokens *domain.TokenSet, _ map[string]string) (*domain.AuthUser, error) {
	var info struct {
		Data struct {
			ID              string `json:"id"`
			Name            string `json:"name"`
			Username        string `json:"username"`
			ProfileImageURL string `json:"profile_image_url"`
		} `json:"data"`
	}
	raw, err := x.getJSON(ctx, XUserEndpoint, tokens.AccessToken, &info)
	if err != nil {
		return nil, err
	}
	if info.Data.ID == "" {
		return nil, fmt.Errorf("x: user response missing id: %w", ErrFetchProfile)
	}

	name := info.Data.Name
	if name == "" {
		name = info.Data.Username
	}

	// X does not expose the account email over the v2 API.
	return &domain.AuthUser{
		ID:       info.Data.ID,
		Name:     name,
		Avatar:   info.Data.ProfileImageURL,
		Provider: x.name,
		Raw:      raw,
	}, nil
}

var _ Provider = (*X)(nil)
var _ PKCEProvider = (*X)(nil)
