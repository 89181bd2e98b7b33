package providers

import (
	"context"
	"encoding/json"
	"fmt"

	githuboauth2 "golang.org/x/oauth2/github"

	"go.pilab.hu/authkit/domain"
)

// Endpoint vars are overridable in tests.
var (
	GitHubUserEndpoint   = "https://api.github.com/user"
	GitHubEmailsEndpoint = "https://api.github.com/user/emails"
)

// GitHub implements Provider for GitHub OAuth login.
//
// GitHub may omit or hide the profile email, so FetchProfile makes a
// secondary call to the emails endpoint to find the primary verified
// address.
type GitHub struct {
	base
}

// NewGitHub creates a GitHub provider with the read:user and user:email
// scopes always requested.
func NewGitHub(cfg Config) *GitHub {
	cfg.Scopes = ensureScopes(cfg.Scopes, "read:user", "user:email")
	return &GitHub{base{
		name:     "github",
		cfg:      cfg,
		endpoint: githuboauth2.Endpoint,
	}}
}

func (g *GitHub) FetchProfile(ctx context.Context, tokens *domain.TokenSet, _ map[string]string) (*domain.AuthUser, error) {
	var info struct {
		ID        json.Number `json:"id"`
		Login     string      `json:"login"`
		Name      string      `json:"name"`
		Email     string      `json:"email"`
		AvatarURL string      `json:"avatar_url"`
	}
	raw, err := g.getJSON(ctx, GitHubUserEndpoint, tokens.AccessToken, &info)
	if err != nil {
		return nil, err
	}
	if info.ID.String() == "" {
		return nil, fmt.Errorf("github: user response missing id: %w", ErrFetchProfile)
	}

	email := info.Email
	verified := false
	if e, v, ok := g.primaryEmail(ctx, tokens.AccessToken); ok {
		email, verified = e, v
	}

	// GitHub's display name is optional; the login handle always exists.
	name := info.Name
	if name == "" {
		name = info.Login
	}

	return &domain.AuthUser{
		ID:            info.ID.String(),
		Email:         email,
		Name:          name,
		Avatar:        info.AvatarURL,
		Provider:      g.name,
		EmailVerified: verified,
		Raw:           raw,
	}, nil
}

// primaryEmail asks the emails endpoint for the primary verified address,
// falling back to any verified one. A failing call is not fatal; the profile
// email (possibly empty) is kept.
func (g *GitHub) primaryEmail(ctx context.Context, accessToken string) (string, bool, bool) {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if _, err := g.getJSON(ctx, GitHubEmailsEndpoint, accessToken, &emails); err != nil {
		return "", false, false
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, true, true
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email, true, true
		}
	}
	return "", false, false
}

var _ Provider = (*GitHub)(nil)
