package providers

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"

	"go.pilab.hu/authkit/domain"
)

var (
	// DiscordUserEndpoint is overridable in tests.
	DiscordUserEndpoint = "https://discord.com/api/users/@me"
	// DiscordCDN is the base URL avatars are served from.
	DiscordCDN = "https://cdn.discordapp.com"
)

var discordEndpoint = oauth2.Endpoint{
	AuthURL:  "https://discord.com/oauth2/authorize",
	TokenURL: "https://discord.com/api/oauth2/token",
}

// Discord implements Provider for Discord OAuth login.
//
// Discord has no literal avatar URL field; the URL is derived from the user
// ID and avatar hash pair.
type Discord struct {
	base
}

// NewDiscord creates a Discord provider with the identify and email scopes
// always requested.
func NewDiscord(cfg Config) *Discord {
	cfg.Scopes = ensureScopes(cfg.Scopes, "identify", "email")
	return &Discord{base{
		name:     "discord",
		cfg:      cfg,
		endpoint: discordEndpoint,
	}}
}

func (d *Discord) FetchProfile(ctx context.Context, tokens *domain.TokenSet, _ map[string]string) (*domain.AuthUser, error) {
	var info struct {
		ID         string `json:"id"`
		Username   string `json:"username"`
		GlobalName string `json:"global_name"`
		Avatar     string `json:"avatar"`
		Email      string `json:"email"`
		Verified   bool   `json:"verified"`
	}
	raw, err := d.getJSON(ctx, DiscordUserEndpoint, tokens.AccessToken, &info)
	if err != nil {
		return nil, err
	}
	if info.ID == "" {
		return nil, fmt.Errorf("discord: user response missing id: %w", ErrFetchProfile)
	}

	// Prefer the display name, fall back to the account username.
	name := info.GlobalName
	if name == "" {
		name = info.Username
	}

	avatar := ""
	if info.Avatar != "" {
		avatar = fmt.Sprintf("%s/avatars/%s/%s.png", DiscordCDN, info.ID, info.Avatar)
	}

	return &domain.AuthUser{
		ID:            info.ID,
		Email:         info.Email,
		Name:          name,
		Avatar:        avatar,
		Provider:      d.name,
		EmailVerified: info.Verified,
		Raw:           raw,
	}, nil
}

var _ Provider = (*Discord)(nil)
