package domain

// AuthUser is the normalized identity record produced by every provider,
// regardless of the shape of the vendor's own profile API.
//
// ID and Provider together form the stable external identity key; Email and
// Name may legitimately differ between logins of the same user.
type AuthUser struct {
	// ID is the user's unique identifier at the provider (e.g. Google's "sub").
	ID string `json:"id"`
	// Email may be empty when the provider withholds it.
	Email         string `json:"email"`
	Name          string `json:"name"`
	Avatar        string `json:"avatar,omitempty"`
	Provider      string `json:"provider"`
	EmailVerified bool   `json:"emailVerified"`

	// Raw preserves the provider-native profile fields for downstream use.
	Raw map[string]any `json:"raw,omitempty"`

	// Roles and Permissions are not part of identity. They are attached
	// transiently by the application's success hook and live only inside the
	// signed session token.
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}
