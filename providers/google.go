package providers

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	googleoauth2 "golang.org/x/oauth2/google"

	"go.pilab.hu/authkit/domain"
)

// GoogleUserInfoEndpoint is a var so tests can point it at a stub server.
var GoogleUserInfoEndpoint = "https://www.googleapis.com/oauth2/v3/userinfo"

// Google implements Provider for Google OIDC login.
type Google struct {
	base
}

// NewGoogle creates a Google provider. The openid, profile and email scopes
// are always requested.
func NewGoogle(cfg Config) *Google {
	cfg.Scopes = ensureScopes(cfg.Scopes, "openid", "profile", "email")
	return &Google{base{
		name:     "google",
		cfg:      cfg,
		endpoint: googleoauth2.Endpoint,
	}}
}

// AuthCodeURL requests offline access so Google issues a refresh token, and
// forwards the configured prompt behavior.
func (g *Google) AuthCodeURL(state, callbackURL string, opts ...oauth2.AuthCodeOption) (string, error) {
	opts = append(opts, oauth2.AccessTypeOffline)
	if g.cfg.Prompt != "" {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", g.cfg.Prompt))
	}
	return g.base.AuthCodeURL(state, callbackURL, opts...)
}

func (g *Google) FetchProfile(ctx context.Context, tokens *domain.TokenSet, _ map[string]string) (*domain.AuthUser, error) {
	var info struct {
		Sub           string `json:"sub"`
		Name          string `json:"name"`
		GivenName     string `json:"given_name"`
		Picture       string `json:"picture"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	raw, err := g.getJSON(ctx, GoogleUserInfoEndpoint, tokens.AccessToken, &info)
	if err != nil {
		return nil, err
	}
	if info.Sub == "" {
		return nil, fmt.Errorf("google: userinfo response missing sub: %w", ErrFetchProfile)
	}

	name := info.Name
	if name == "" {
		name = info.GivenName
	}
	return &domain.AuthUser{
		ID:            info.Sub,
		Email:         info.Email,
		Name:          name,
		Avatar:        info.Picture,
		Provider:      g.name,
		EmailVerified: info.EmailVerified,
		Raw:           raw,
	}, nil
}

var _ Provider = (*Google)(nil)
