package authkit

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"go.pilab.hu/authkit/domain"
	"go.pilab.hu/authkit/providers"
)

// ValidTokens returns usable provider tokens for (provider, user),
// refreshing them when expired. Returns (nil, nil) when no tokens are
// stored or the credential is unrecoverable; the application must restart
// the login flow in that case. No network call is made while the stored
// tokens are still fresh.
func (a *AuthKit) ValidTokens(ctx context.Context, providerName, userID string) (*domain.TokenSet, error) {
	key := domain.TokenKey(providerName, userID)
	stored, err := a.tokens.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, nil
	}
	if !stored.Expired(time.Now()) {
		return stored, nil
	}
	if stored.RefreshToken == "" {
		return nil, nil
	}
	return a.refresh(ctx, providerName, userID, key, stored)
}

// ForceRefresh performs a refresh exchange regardless of expiry. Returns
// (nil, nil) when no tokens or no refresh token are stored.
func (a *AuthKit) ForceRefresh(ctx context.Context, providerName, userID string) (*domain.TokenSet, error) {
	key := domain.TokenKey(providerName, userID)
	stored, err := a.tokens.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if stored == nil || stored.RefreshToken == "" {
		return nil, nil
	}
	return a.refresh(ctx, providerName, userID, key, stored)
}

// refresh runs the refresh-token grant. A failed exchange deletes the
// stored entry and resolves to nil: a refresh token that fails once is
// assumed permanently dead, and the next ValidTokens call reports "no
// tokens" instead of retrying.
func (a *AuthKit) refresh(ctx context.Context, providerName, userID, key string, stored *domain.TokenSet) (*domain.TokenSet, error) {
	p, err := a.Provider(providerName)
	if err != nil {
		return nil, err
	}
	conf, err := p.OAuth2Config(a.CallbackURL(providerName))
	if err != nil {
		return nil, err
	}

	fresh, err := a.refreshExchange(ctx, conf, stored)
	if err != nil {
		log.Warn().Err(err).Str("key", key).
			Msg("refresh exchange failed; dropping stored tokens")
		if _, derr := a.tokens.Delete(ctx, key); derr != nil {
			log.Error().Err(derr).Str("key", key).Msg("deleting dead tokens failed")
		}
		return nil, nil
	}

	if err := a.tokens.Set(ctx, key, fresh); err != nil {
		log.Error().Err(err).Str("key", key).Msg("persisting refreshed tokens failed")
	}

	if a.cfg.Hooks.OnTokenRefresh != nil {
		a.callTokenRefresh(ctx, providerName, userID, fresh)
	}
	a.emit(Event{Kind: EventTokenRefresh, Provider: providerName, Tokens: fresh})

	return fresh, nil
}

func (a *AuthKit) refreshExchange(ctx context.Context, conf *oauth2.Config, stored *domain.TokenSet) (*domain.TokenSet, error) {
	src := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: stored.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, err
	}

	fresh := providers.TokenSetFrom(tok)
	// Vendors may omit the refresh token from the refresh response; never
	// null out a working one.
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = stored.RefreshToken
	}
	return fresh, nil
}

func (a *AuthKit) callTokenRefresh(ctx context.Context, provider, userID string, tokens *domain.TokenSet) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Str("provider", provider).
				Msg("token-refresh hook panicked; continuing")
		}
	}()
	a.cfg.Hooks.OnTokenRefresh(ctx, provider, userID, tokens)
}
