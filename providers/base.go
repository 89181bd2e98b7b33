package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"go.pilab.hu/authkit/domain"
)

// base carries the pieces shared by every vendor variant: the client
// configuration, the vendor endpoint pair, and the default code exchange.
type base struct {
	name     string
	cfg      Config
	endpoint oauth2.Endpoint
}

func (b *base) Name() string { return b.name }

func (b *base) OAuth2Config(callbackURL string) (*oauth2.Config, error) {
	if b.cfg.ClientID == "" || b.cfg.ClientSecret == "" {
		return nil, ErrMisconfigured
	}
	// An explicit per-provider callback wins over the derived one.
	if b.cfg.CallbackURL != "" {
		callbackURL = b.cfg.CallbackURL
	}
	return &oauth2.Config{
		ClientID:     b.cfg.ClientID,
		ClientSecret: b.cfg.ClientSecret,
		RedirectURL:  callbackURL,
		Scopes:       b.cfg.Scopes,
		Endpoint:     b.endpoint,
	}, nil
}

func (b *base) AuthCodeURL(state, callbackURL string, opts ...oauth2.AuthCodeOption) (string, error) {
	conf, err := b.OAuth2Config(callbackURL)
	if err != nil {
		return "", err
	}
	return conf.AuthCodeURL(state, opts...), nil
}

// Exchange posts client credentials and the code to the vendor token
// endpoint. Non-success responses surface as ExchangeFailure with the raw
// body attached.
func (b *base) Exchange(ctx context.Context, callbackURL, code string, opts ...oauth2.AuthCodeOption) (*domain.TokenSet, error) {
	conf, err := b.OAuth2Config(callbackURL)
	if err != nil {
		return nil, err
	}
	tok, err := conf.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, b.exchangeFailure(err)
	}
	return TokenSetFrom(tok), nil
}

func (b *base) exchangeFailure(err error) error {
	f := ExchangeFailure{Failure{Provider: b.name, Body: err.Error()}}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.Response != nil {
			f.Status = re.Response.StatusCode
		}
		f.Body = string(re.Body)
	}
	return &f
}

// getJSON performs an authenticated GET against a vendor profile endpoint
// and decodes the JSON body into out, keeping the raw fields in a map.
func (b *base) getJSON(ctx context.Context, url, accessToken string, out any) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, &Failure{Provider: b.name, Body: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Failure{Provider: b.name, Status: resp.StatusCode, Body: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Failure{Provider: b.name, Status: resp.StatusCode, Body: string(body)}
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return nil, &Failure{Provider: b.name, Status: resp.StatusCode, Body: err.Error()}
		}
	}
	raw := map[string]any{}
	_ = json.Unmarshal(body, &raw)
	return raw, nil
}

// TokenSetFrom converts an oauth2 token response into the domain TokenSet,
// preserving scope and identity-token extras.
func TokenSetFrom(tok *oauth2.Token) *domain.TokenSet {
	ts := &domain.TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if !tok.Expiry.IsZero() {
		ts.ExpiresAt = tok.Expiry
	}
	if s, ok := tok.Extra("scope").(string); ok {
		ts.Scope = s
	}
	if id, ok := tok.Extra("id_token").(string); ok {
		ts.IDToken = id
	}
	return ts
}

// dedupe removes repeated scopes while keeping first-seen order.
func dedupe(scopes []string) []string {
	seen := make(map[string]bool, len(scopes))
	out := scopes[:0]
	for _, s := range scopes {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// ensureScopes appends any of want missing from scopes.
func ensureScopes(scopes []string, want ...string) []string {
	for _, w := range want {
		found := false
		for _, s := range scopes {
			if s == w {
				found = true
				break
			}
		}
		if !found {
			scopes = append(scopes, w)
		}
	}
	return dedupe(scopes)
}
