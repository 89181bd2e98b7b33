package domain

import "time"

// TokenSet is an OAuth access/refresh credential bundle with expiry metadata.
//
// A TokenSet is created at code exchange or refresh and replaced wholesale on
// refresh, never field-updated. It is owned by the TokenStore under the
// composite key "{provider}:{userID}".
type TokenSet struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	// ExpiresAt is zero when the provider reported no expiry; such tokens are
	// treated as non-expiring.
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
	TokenType string    `json:"tokenType"`
	Scope     string    `json:"scope,omitempty"`
	// IDToken carries the OIDC identity token when the provider issued one.
	// Apple derives its whole profile from it.
	IDToken string `json:"idToken,omitempty"`
}

// Expired reports whether the set's access token is past its expiry.
// Sets without an expiry never expire.
func (t *TokenSet) Expired(now time.Time) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return now.After(t.ExpiresAt)
}

// TokenKey builds the composite TokenStore key for a provider/user pair.
func TokenKey(provider, userID string) string {
	return provider + ":" + userID
}
