// Package providers implements the per-vendor OAuth2 login capability set:
// building authorization URLs, exchanging authorization codes, and mapping
// vendor profile shapes into the normalized domain.AuthUser record.
package providers

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"go.pilab.hu/authkit/domain"
)

var (
	// ErrMisconfigured is returned when a provider is missing its client
	// credentials.
	ErrMisconfigured = errors.New("provider is misconfigured")
	// ErrFetchProfile is returned when a vendor profile response cannot be
	// normalized into an AuthUser.
	ErrFetchProfile = errors.New("failed to normalize provider profile")
)

// Failure is a non-success response from a vendor endpoint during exchange
// or profile fetch. It carries the provider name and the raw response body
// and is never retried automatically.
type Failure struct {
	Provider string
	Status   int
	Body     string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: provider request failed with status %d: %s", f.Provider, f.Status, f.Body)
}

// ExchangeFailure is a Failure raised specifically during the
// authorization-code exchange.
type ExchangeFailure struct {
	Failure
}

// Config holds one provider's OAuth2 client settings. Vendor constructors
// fill in endpoint constants and default scopes.
type Config struct {
	ClientID     string
	ClientSecret string
	// Scopes override the vendor defaults when non-empty.
	Scopes []string
	// CallbackURL, when set, overrides the toolkit's derived callback URL.
	CallbackURL string
	// Prompt controls vendor prompt behavior where supported
	// (e.g. Google's "consent" or "select_account").
	Prompt string
}

// Provider is the capability set every vendor variant implements.
type Provider interface {
	// Name returns the provider tag, e.g. "google".
	Name() string

	// AuthCodeURL builds the URL the user is redirected to, binding the
	// login to the CSRF state.
	AuthCodeURL(state, callbackURL string, opts ...oauth2.AuthCodeOption) (string, error)

	// Exchange trades an authorization code for a TokenSet.
	Exchange(ctx context.Context, callbackURL, code string, opts ...oauth2.AuthCodeOption) (*domain.TokenSet, error)

	// FetchProfile maps the vendor's profile shape into an AuthUser with
	// non-empty ID and Provider. Extra carries auxiliary callback payloads
	// (Apple's first-login "user" form field).
	FetchProfile(ctx context.Context, tokens *domain.TokenSet, extra map[string]string) (*domain.AuthUser, error)

	// OAuth2Config exposes the underlying client configuration; the token
	// refresher re-enters the vendor token endpoint through it.
	OAuth2Config(callbackURL string) (*oauth2.Config, error)
}

// PKCEProvider is implemented by providers whose code exchange requires a
// proof-key verifier. The orchestrator generates the verifier per login and
// threads it through the callback explicitly; providers hold no verifier
// state.
type PKCEProvider interface {
	UsesPKCE() bool
}

// UsesPKCE reports whether p requires PKCE on its code exchange.
func UsesPKCE(p Provider) bool {
	pk, ok := p.(PKCEProvider)
	return ok && pk.UsesPKCE()
}
